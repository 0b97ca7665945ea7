package store

const schema = `
CREATE TABLE IF NOT EXISTS papers (
    id                  INTEGER PRIMARY KEY AUTOINCREMENT,
    external_id         TEXT NOT NULL UNIQUE,
    doi                 TEXT NOT NULL DEFAULT '',
    url                 TEXT NOT NULL DEFAULT '',
    title               TEXT NOT NULL,
    abstract            TEXT NOT NULL DEFAULT '',
    domain              TEXT,
    authors             TEXT NOT NULL DEFAULT '[]',
    keywords            TEXT NOT NULL DEFAULT '[]',
    published_at        DATETIME,
    embedding           TEXT,
    moat_score          REAL,
    moat_evidence       TEXT,
    scalability_score   REAL,
    scalability_evidence TEXT,
    attention_gap_score REAL,
    attention_gap_evidence TEXT,
    network_score       REAL,
    network_evidence    TEXT,
    composite_score     REAL,
    scoring_metadata    TEXT,
    scored_at           DATETIME,
    ingested_at         DATETIME NOT NULL,
    updated_at          DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_papers_domain ON papers(domain);
CREATE INDEX IF NOT EXISTS idx_papers_composite ON papers(composite_score);
CREATE INDEX IF NOT EXISTS idx_papers_published_at ON papers(published_at);

CREATE TABLE IF NOT EXISTS repositories (
    id                 INTEGER PRIMARY KEY AUTOINCREMENT,
    full_name          TEXT NOT NULL UNIQUE,
    description        TEXT NOT NULL DEFAULT '',
    language           TEXT NOT NULL DEFAULT '',
    url                TEXT NOT NULL DEFAULT '',
    topics             TEXT NOT NULL DEFAULT '[]',
    stars              INTEGER NOT NULL DEFAULT 0,
    forks              INTEGER NOT NULL DEFAULT 0,
    open_issues        INTEGER NOT NULL DEFAULT 0,
    repo_created_at    DATETIME,
    pushed_at          DATETIME,
    complexity_score   REAL,
    velocity_score     REAL,
    velocity_evidence  TEXT,
    ingested_at        DATETIME NOT NULL,
    updated_at         DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_repositories_stars ON repositories(stars);

CREATE TABLE IF NOT EXISTS paper_repo_links (
    paper_id    INTEGER NOT NULL REFERENCES papers(id) ON DELETE CASCADE,
    repo_id     INTEGER NOT NULL REFERENCES repositories(id) ON DELETE CASCADE,
    confidence  REAL NOT NULL,
    evidence    TEXT NOT NULL DEFAULT '{}',
    created_at  DATETIME NOT NULL,
    updated_at  DATETIME NOT NULL,
    PRIMARY KEY (paper_id, repo_id)
);

CREATE INDEX IF NOT EXISTS idx_links_repo ON paper_repo_links(repo_id);

CREATE TABLE IF NOT EXISTS domain_metrics (
    domain             TEXT NOT NULL,
    window_start       DATETIME NOT NULL,
    window_end         DATETIME NOT NULL,
    paper_count        INTEGER NOT NULL DEFAULT 0,
    repo_count         INTEGER NOT NULL DEFAULT 0,
    novelty_mu         REAL NOT NULL DEFAULT 0,
    novelty_sigma      REAL NOT NULL DEFAULT 0,
    momentum_mu        REAL NOT NULL DEFAULT 0,
    momentum_sigma     REAL NOT NULL DEFAULT 0,
    moat_mu            REAL NOT NULL DEFAULT 0,
    moat_sigma         REAL NOT NULL DEFAULT 0,
    scalability_mu     REAL NOT NULL DEFAULT 0,
    scalability_sigma  REAL NOT NULL DEFAULT 0,
    attention_mu       REAL NOT NULL DEFAULT 0,
    attention_sigma    REAL NOT NULL DEFAULT 0,
    network_mu         REAL NOT NULL DEFAULT 0,
    network_sigma      REAL NOT NULL DEFAULT 0,
    computed_at        DATETIME NOT NULL,
    PRIMARY KEY (domain, window_start, window_end)
);

CREATE TABLE IF NOT EXISTS opportunities (
    id                 INTEGER PRIMARY KEY AUTOINCREMENT,
    slug               TEXT NOT NULL UNIQUE,
    domain             TEXT NOT NULL,
    week_of            TEXT NOT NULL,
    rank               INTEGER NOT NULL,
    score              REAL NOT NULL,
    recommendation     TEXT NOT NULL,
    component_scores   TEXT NOT NULL DEFAULT '{}',
    key_papers         TEXT NOT NULL DEFAULT '[]',
    related_repos      TEXT NOT NULL DEFAULT '[]',
    executive_summary  TEXT NOT NULL DEFAULT '',
    investment_thesis  TEXT NOT NULL DEFAULT '',
    created_at         DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_opportunities_domain_week ON opportunities(domain, week_of);

CREATE TABLE IF NOT EXISTS http_cache (
    url            TEXT PRIMARY KEY,
    etag           TEXT NOT NULL DEFAULT '',
    last_modified  TEXT NOT NULL DEFAULT '',
    status_code    INTEGER NOT NULL DEFAULT 0,
    body           BLOB,
    fetched_at     DATETIME NOT NULL
);
`
