// Package main hosts the archive crawler entrypoint.
//
// Architecture overview:
//   - Discovery: internal/crawler walks the archive root, each year page (which doubles as the first month)
//     and every month page it links, enqueuing one ImageJob per strip image as each page is parsed.
//   - Queue & pool: jobs flow through an unbounded in-memory queue to a fixed worker pool sized by
//     config.Crawler.Workers. The run ends once discovery has finished and the queue's outstanding count
//     reaches zero; the queue is then closed and workers exit.
//   - Downloads: each worker parses the alt-text date, skips dates whose file already exists and otherwise
//     streams the image into a temp file beside the target before renaming it into place. The output tree is
//     the only record of what has been downloaded, so rerunning resumes a partial crawl.
//   - Configuration & plumbing: Viper populates config from env/files; zap provides structured logging with the
//     run ID on every line; Prometheus metrics and a JSON progress snapshot are served by the optional status
//     server; an optional Postgres manifest records one row per target path.
//
// Quick checklist:
//   - Configure env vars: CRAWLER_ARCHIVE_ROOT_URL, CRAWLER_STORAGE_OUTPUT_DIR, CRAWLER_CRAWLER_WORKERS,
//     CRAWLER_HTTP_MAX_ATTEMPTS, CRAWLER_STATUS_ADDR and CRAWLER_MANIFEST_DSN when needed.
//   - Run locally: go run ./cmd/archivecrawler -config config.yaml (or rely solely on env overrides).
//   - Exit status is 0 after a completed crawl, including one with per-page or per-image failures, and 1 when
//     the configuration is invalid, the output root cannot be created or the archive root is unreachable.
package main
