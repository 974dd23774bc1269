package database

const schema = `
CREATE TABLE IF NOT EXISTS schema_migrations (
	version INTEGER PRIMARY KEY,
	applied_at DATETIME NOT NULL
);
CREATE TABLE IF NOT EXISTS users (
	user_id INTEGER PRIMARY KEY AUTOINCREMENT,
	username TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	user_role TEXT NOT NULL DEFAULT 'none'
);
CREATE TABLE IF NOT EXISTS boards (
	board_id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL UNIQUE
);
CREATE TABLE IF NOT EXISTS requesters (
	requester_id INTEGER PRIMARY KEY AUTOINCREMENT,
	ip_address TEXT NOT NULL UNIQUE,
	last_post_time DATETIME NOT NULL
);
-- parent_id deliberately has no foreign key: deleting a root post leaves its
-- replies in place with a dangling parent reference.
CREATE TABLE IF NOT EXISTS posts (
	post_id INTEGER PRIMARY KEY AUTOINCREMENT,
	title TEXT NOT NULL DEFAULT '',
	message TEXT NOT NULL DEFAULT '',
	date DATETIME NOT NULL,
	board_id INTEGER NOT NULL,
	user_id INTEGER,
	requester_id INTEGER,
	parent_id INTEGER,
	latest_reply_date DATETIME,
	FOREIGN KEY (board_id) REFERENCES boards(board_id),
	FOREIGN KEY (user_id) REFERENCES users(user_id) ON DELETE SET NULL,
	FOREIGN KEY (requester_id) REFERENCES requesters(requester_id)
);
CREATE TABLE IF NOT EXISTS files (
	file_id INTEGER PRIMARY KEY AUTOINCREMENT,
	file_name TEXT NOT NULL,
	file_hash TEXT NOT NULL UNIQUE,
	content_type TEXT NOT NULL,
	post_id INTEGER,
	FOREIGN KEY (post_id) REFERENCES posts(post_id) ON DELETE SET NULL
);
CREATE TABLE IF NOT EXISTS bans (
	ban_id INTEGER PRIMARY KEY AUTOINCREMENT,
	reason TEXT NOT NULL,
	date DATETIME NOT NULL,
	expiration DATETIME NOT NULL,
	active BOOLEAN NOT NULL DEFAULT 1,
	requester_id INTEGER NOT NULL,
	FOREIGN KEY (requester_id) REFERENCES requesters(requester_id)
);
CREATE TABLE IF NOT EXISTS mod_actions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp DATETIME NOT NULL,
	moderator TEXT NOT NULL,
	action TEXT NOT NULL,
	target_id INTEGER,
	details TEXT
);

-- --- INDEXES ---
CREATE INDEX IF NOT EXISTS idx_posts_board_bump ON posts(board_id, parent_id, latest_reply_date DESC);
CREATE INDEX IF NOT EXISTS idx_posts_parent ON posts(parent_id);
CREATE INDEX IF NOT EXISTS idx_posts_user ON posts(user_id);
CREATE INDEX IF NOT EXISTS idx_files_post ON files(post_id);
CREATE INDEX IF NOT EXISTS idx_bans_requester ON bans(requester_id);
CREATE INDEX IF NOT EXISTS idx_mod_actions_time ON mod_actions(timestamp DESC);
`
