package hcf

// CrawlState is the crawl progress of a fingerprint as shared through the
// state cache.
type CrawlState int

// CrawlState values.
const (
	NotCrawled CrawlState = iota
	Queued
	Crawled
	Errored
)

// String returns the lowercase name of the state.
func (s CrawlState) String() string {
	switch s {
	case NotCrawled:
		return "not_crawled"
	case Queued:
		return "queued"
	case Crawled:
		return "crawled"
	case Errored:
		return "error"
	}
	return "unknown"
}

// ParseCrawlState parses a state name as returned by String.
func ParseCrawlState(s string) (CrawlState, error) {
	switch s {
	case "not_crawled":
		return NotCrawled, nil
	case "queued":
		return Queued, nil
	case "crawled":
		return Crawled, nil
	case "error":
		return Errored, nil
	}
	return 0, Errorf(EINVALID, "unknown crawl state %q", s)
}
