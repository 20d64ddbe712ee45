package store

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS beatmapsets (
    id              INTEGER PRIMARY KEY,
    artist          TEXT NOT NULL,
    artist_unicode  TEXT,
    creator         TEXT NOT NULL,
    favourite_count INTEGER NOT NULL DEFAULT 0,
    play_count      INTEGER NOT NULL DEFAULT 0,
    status          TEXT NOT NULL,
    title           TEXT NOT NULL,
    title_unicode   TEXT,
    source          TEXT,
    user_id         INTEGER,
    nsfw            BOOLEAN NOT NULL DEFAULT 0,
    video           BOOLEAN NOT NULL DEFAULT 0,
    storyboard      BOOLEAN NOT NULL DEFAULT 0,
    bpm             REAL,
    rating          REAL,
    tags            TEXT,
    covers          TEXT NOT NULL DEFAULT '{}',
    ranked_date     DATETIME,
    submitted_date  DATETIME,
    last_updated    DATETIME,
    created_at      DATETIME NOT NULL,
    updated_at      DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_beatmapsets_ranked_date ON beatmapsets(ranked_date, id);
CREATE INDEX IF NOT EXISTS idx_beatmapsets_fav_count ON beatmapsets(favourite_count);
CREATE INDEX IF NOT EXISTS idx_beatmapsets_artist ON beatmapsets(artist);
CREATE INDEX IF NOT EXISTS idx_beatmapsets_title ON beatmapsets(title);

CREATE TABLE IF NOT EXISTS beatmaps (
    id                INTEGER PRIMARY KEY,
    beatmapset_id     INTEGER NOT NULL REFERENCES beatmapsets(id) ON DELETE CASCADE,
    version           TEXT NOT NULL,
    difficulty_rating REAL NOT NULL,
    mode              TEXT NOT NULL,
    mode_int          INTEGER,
    status            TEXT NOT NULL,
    total_length      INTEGER NOT NULL,
    hit_length        INTEGER,
    user_id           INTEGER,
    accuracy          REAL,
    ar                REAL NOT NULL,
    cs                REAL NOT NULL,
    bpm               REAL NOT NULL,
    drain             REAL,
    passcount         INTEGER,
    playcount         INTEGER,
    max_combo         INTEGER,
    count_circles     INTEGER,
    count_sliders     INTEGER,
    count_spinners    INTEGER,
    checksum          TEXT,
    url               TEXT,
    last_updated      DATETIME,
    created_at        DATETIME NOT NULL,
    updated_at        DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_beatmaps_main ON beatmaps(difficulty_rating, ar, cs, bpm);
CREATE INDEX IF NOT EXISTS idx_beatmaps_mode ON beatmaps(mode);
CREATE INDEX IF NOT EXISTS idx_beatmaps_setid ON beatmaps(beatmapset_id);
`

const postgresSchema = `
CREATE TABLE IF NOT EXISTS beatmapsets (
    id              BIGINT PRIMARY KEY,
    artist          TEXT NOT NULL,
    artist_unicode  TEXT,
    creator         TEXT NOT NULL,
    favourite_count INTEGER NOT NULL DEFAULT 0,
    play_count      INTEGER NOT NULL DEFAULT 0,
    status          VARCHAR(20) NOT NULL,
    title           TEXT NOT NULL,
    title_unicode   TEXT,
    source          TEXT,
    user_id         BIGINT,
    nsfw            BOOLEAN NOT NULL DEFAULT FALSE,
    video           BOOLEAN NOT NULL DEFAULT FALSE,
    storyboard      BOOLEAN NOT NULL DEFAULT FALSE,
    bpm             DOUBLE PRECISION,
    rating          DOUBLE PRECISION,
    tags            TEXT,
    covers          TEXT NOT NULL DEFAULT '{}',
    ranked_date     TIMESTAMPTZ,
    submitted_date  TIMESTAMPTZ,
    last_updated    TIMESTAMPTZ,
    created_at      TIMESTAMPTZ NOT NULL,
    updated_at      TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_beatmapsets_ranked_date ON beatmapsets(ranked_date, id);
CREATE INDEX IF NOT EXISTS idx_beatmapsets_fav_count ON beatmapsets(favourite_count);
CREATE INDEX IF NOT EXISTS idx_beatmapsets_artist ON beatmapsets(artist);
CREATE INDEX IF NOT EXISTS idx_beatmapsets_title ON beatmapsets(title);

CREATE TABLE IF NOT EXISTS beatmaps (
    id                BIGINT PRIMARY KEY,
    beatmapset_id     BIGINT NOT NULL REFERENCES beatmapsets(id) ON DELETE CASCADE,
    version           TEXT NOT NULL,
    difficulty_rating DOUBLE PRECISION NOT NULL,
    mode              VARCHAR(10) NOT NULL,
    mode_int          SMALLINT,
    status            VARCHAR(20) NOT NULL,
    total_length      INTEGER NOT NULL,
    hit_length        INTEGER,
    user_id           BIGINT,
    accuracy          DOUBLE PRECISION,
    ar                DOUBLE PRECISION NOT NULL,
    cs                DOUBLE PRECISION NOT NULL,
    bpm               DOUBLE PRECISION NOT NULL,
    drain             DOUBLE PRECISION,
    passcount         INTEGER,
    playcount         INTEGER,
    max_combo         INTEGER,
    count_circles     INTEGER,
    count_sliders     INTEGER,
    count_spinners    INTEGER,
    checksum          VARCHAR(32),
    url               TEXT,
    last_updated      TIMESTAMPTZ,
    created_at        TIMESTAMPTZ NOT NULL,
    updated_at        TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_beatmaps_main ON beatmaps(difficulty_rating, ar, cs, bpm);
CREATE INDEX IF NOT EXISTS idx_beatmaps_mode ON beatmaps(mode);
CREATE INDEX IF NOT EXISTS idx_beatmaps_setid ON beatmaps(beatmapset_id);
`

func schemaFor(driver string) string {
	if driver == DriverPostgres {
		return postgresSchema
	}
	return sqliteSchema
}
