package crawl

// Decision is a progress callback's verdict on whether the crawl continues.
type Decision int

const (
	DecisionContinue Decision = iota
	DecisionCancel
)

// ProgressFunc is called synchronously in the crawl goroutine after each
// crawled page. pagesCrawled counts fetched pages; total is the current
// completion estimate, min(crawled+queued, maxPages), which can grow as links
// are discovered. Returning DecisionCancel stops the run before the next
// dequeue; pages crawled so far stay valid.
type ProgressFunc func(pagesCrawled, total int) Decision
