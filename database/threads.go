package database

import (
	"context"
	"twok/config"
	"twok/models"
	"twok/utils"
)

// BoardPage returns one page of a board's threads, each root carrying a
// preview of its most recent replies.
func (ds *DatabaseService) BoardPage(ctx context.Context, boardName string, page int) ([]models.Post, error) {
	board, err := ds.Boards.ByName(ctx, boardName)
	if err != nil {
		return nil, err
	}
	pageSize := ds.Boards.PageSize()
	roots, err := ds.Posts.BoardRoots(ctx, board.ID, utils.Skip(page, pageSize), pageSize)
	if err != nil {
		return nil, err
	}
	if len(roots) == 0 {
		return roots, nil
	}

	rootIDs := make([]int64, len(roots))
	for i := range roots {
		rootIDs[i] = roots[i].ID
	}
	previews, err := ds.Posts.RecentReplies(ctx, rootIDs, config.PreviewReplies)
	if err != nil {
		return nil, err
	}
	for i := range roots {
		if replies, ok := previews[roots[i].ID]; ok {
			roots[i].Children = replies
		}
	}
	if err := ds.AttachFiles(ctx, roots); err != nil {
		return nil, err
	}
	return roots, nil
}

// Thread resolves any post id to its thread: the root with all direct
// replies attached.
func (ds *DatabaseService) Thread(ctx context.Context, postID int64) (*models.Post, error) {
	post, err := ds.Posts.GetByID(ctx, postID)
	if err != nil {
		return nil, err
	}
	root, err := ds.Posts.RootParent(ctx, post)
	if err != nil {
		return nil, err
	}
	replies, err := ds.Posts.Replies(ctx, root.ID)
	if err != nil {
		return nil, err
	}
	root.Children = replies

	thread := []models.Post{*root}
	if err := ds.AttachFiles(ctx, thread); err != nil {
		return nil, err
	}
	return &thread[0], nil
}

// AttachFiles fills in File on the given posts and their children.
func (ds *DatabaseService) AttachFiles(ctx context.Context, posts []models.Post) error {
	var ids []int64
	for i := range posts {
		ids = append(ids, posts[i].ID)
		for j := range posts[i].Children {
			ids = append(ids, posts[i].Children[j].ID)
		}
	}
	files, err := ds.Files.ForPosts(ctx, ids)
	if err != nil {
		return err
	}
	for i := range posts {
		posts[i].File = files[posts[i].ID]
		for j := range posts[i].Children {
			posts[i].Children[j].File = files[posts[i].Children[j].ID]
		}
	}
	return nil
}
