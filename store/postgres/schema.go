package postgres

// schema is applied by Migrate. Every statement is idempotent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id               BIGSERIAL PRIMARY KEY,
		ap_url           TEXT NOT NULL UNIQUE,
		type             TEXT NOT NULL DEFAULT 'Person',
		username         TEXT NOT NULL DEFAULT '',
		domain           TEXT NOT NULL DEFAULT '',
		display_name     TEXT NOT NULL DEFAULT '',
		summary          TEXT NOT NULL DEFAULT '',
		inbox_url        TEXT NOT NULL DEFAULT '',
		shared_inbox_url TEXT NOT NULL DEFAULT '',
		outbox_url       TEXT NOT NULL DEFAULT '',
		followers_url    TEXT NOT NULL DEFAULT '',
		public_key       TEXT NOT NULL DEFAULT '',
		private_key      TEXT NOT NULL DEFAULT '',
		local            BOOLEAN NOT NULL DEFAULT FALSE,
		created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS users_local_username ON users (username) WHERE local`,
	`CREATE TABLE IF NOT EXISTS blogs (
		id          BIGSERIAL PRIMARY KEY,
		ap_url      TEXT NOT NULL UNIQUE,
		name        TEXT NOT NULL DEFAULT '',
		domain      TEXT NOT NULL DEFAULT '',
		title       TEXT NOT NULL DEFAULT '',
		summary     TEXT NOT NULL DEFAULT '',
		inbox_url   TEXT NOT NULL DEFAULT '',
		outbox_url  TEXT NOT NULL DEFAULT '',
		public_key  TEXT NOT NULL DEFAULT '',
		local       BOOLEAN NOT NULL DEFAULT FALSE,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS posts (
		id          BIGSERIAL PRIMARY KEY,
		ap_url      TEXT NOT NULL UNIQUE,
		blog_id     BIGINT NOT NULL DEFAULT 0,
		author_ids  BIGINT[] NOT NULL DEFAULT '{}',
		title       TEXT NOT NULL DEFAULT '',
		content     TEXT NOT NULL DEFAULT '',
		summary     TEXT NOT NULL DEFAULT '',
		license     TEXT NOT NULL DEFAULT '',
		source_url  TEXT NOT NULL DEFAULT '',
		tags        TEXT[] NOT NULL DEFAULT '{}',
		published   TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at  TIMESTAMPTZ
	)`,
	`CREATE TABLE IF NOT EXISTS comments (
		id              BIGSERIAL PRIMARY KEY,
		ap_url          TEXT NOT NULL UNIQUE,
		post_id         BIGINT NOT NULL REFERENCES posts (id) ON DELETE CASCADE,
		in_response_to  BIGINT NOT NULL DEFAULT 0,
		author_id       BIGINT NOT NULL REFERENCES users (id) ON DELETE CASCADE,
		content         TEXT NOT NULL DEFAULT '',
		spoiler_text    TEXT NOT NULL DEFAULT '',
		sensitive       BOOLEAN NOT NULL DEFAULT FALSE,
		published       TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS likes (
		id       BIGSERIAL PRIMARY KEY,
		ap_url   TEXT NOT NULL UNIQUE,
		user_id  BIGINT NOT NULL REFERENCES users (id) ON DELETE CASCADE,
		post_id  BIGINT NOT NULL REFERENCES posts (id) ON DELETE CASCADE
	)`,
	`CREATE TABLE IF NOT EXISTS reshares (
		id       BIGSERIAL PRIMARY KEY,
		ap_url   TEXT NOT NULL UNIQUE,
		user_id  BIGINT NOT NULL REFERENCES users (id) ON DELETE CASCADE,
		post_id  BIGINT NOT NULL REFERENCES posts (id) ON DELETE CASCADE
	)`,
	`CREATE TABLE IF NOT EXISTS follows (
		id            BIGSERIAL PRIMARY KEY,
		ap_url        TEXT NOT NULL UNIQUE,
		follower_id   BIGINT NOT NULL REFERENCES users (id) ON DELETE CASCADE,
		following_id  BIGINT NOT NULL REFERENCES users (id) ON DELETE CASCADE
	)`,
	`CREATE TABLE IF NOT EXISTS notifications (
		id          BIGSERIAL PRIMARY KEY,
		user_id     BIGINT NOT NULL REFERENCES users (id) ON DELETE CASCADE,
		kind        TEXT NOT NULL,
		object_id   BIGINT NOT NULL DEFAULT 0,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
}
