package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func SetupRouter(app App) *chi.Mux {
	mux := chi.NewRouter()

	mux.Use(middleware.RequestID)
	// Bans and rate limits key on the client address, so forwarding headers
	// are honoured only when a trusted proxy sets them.
	if app.TrustProxyHeaders() {
		mux.Use(middleware.RealIP)
	}
	mux.Use(NewStructuredLogger(app.Logger()))
	mux.Use(middleware.Recoverer)
	mux.Use(NewSecurityHeadersMiddleware())
	mux.Use(NewCORSMiddleware())
	mux.Use(UserMiddleware(app))

	requireUser := RequireUser(app)
	requireAdmin := RequireAdmin(app)

	// Locally stored uploads
	if app.UploadDir() != "" {
		mux.Handle("/uploads/*", http.StripPrefix("/uploads/", http.FileServer(http.Dir(app.UploadDir()))))
	}

	mux.Get("/health", MakeHandler(app, HandleHealth))

	mux.Route("/board", func(r chi.Router) {
		r.Get("/", MakeHandler(app, HandleListBoards))
		r.Post("/", MakeHandler(app, HandleCreateBoard))
		r.Get("/{boardName}/posts", MakeHandler(app, HandleBoardPosts))
		r.Get("/{boardName}/posts/pagecount", MakeHandler(app, HandlePageCount))
	})

	mux.Route("/post", func(r chi.Router) {
		r.Post("/", MakeHandler(app, HandleCreatePost))
		r.Get("/{postID}", MakeHandler(app, HandleGetPost))
		r.Get("/stream/{postID}", MakeHandler(app, HandleStream))
		r.Post("/upload", MakeHandler(app, HandleUpload))
		r.With(requireAdmin).Delete("/{postID}", MakeHandler(app, HandleDeletePost))
		r.With(requireAdmin).Delete("/upload/{fileID}", MakeHandler(app, HandleDeleteFile))
	})

	mux.Route("/search", func(r chi.Router) {
		r.Get("/post/{query}", MakeHandler(app, HandleSearchPosts))
		r.Get("/board/{boardName}/post/{query}", MakeHandler(app, HandleSearchPosts))
	})

	mux.Route("/user", func(r chi.Router) {
		r.Post("/", MakeHandler(app, HandleRegister))
		r.Post("/token", MakeHandler(app, HandleToken))

		r.Group(func(r chi.Router) {
			r.Use(requireUser)
			r.Get("/me", MakeHandler(app, HandleMe))
			r.Post("/reset_password", MakeHandler(app, HandleResetPassword))
			r.Get("/{userID}/posts", MakeHandler(app, HandleUserPosts))
		})

		r.Group(func(r chi.Router) {
			r.Use(requireAdmin)
			r.Post("/ban", MakeHandler(app, HandleBan))
			r.Get("/bans", MakeHandler(app, HandleListBans))
			r.Delete("/ban/{banID}", MakeHandler(app, HandleUnban))
			r.Get("/modlog", MakeHandler(app, HandleModLog))
			r.Delete("/{userID}", MakeHandler(app, HandleDeleteUser))
		})
	})

	mux.With(requireAdmin).Post("/admin/backup", MakeHandler(app, HandleDatabaseBackup))

	return mux
}
