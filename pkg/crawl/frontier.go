package crawl

// Frontier is the FIFO crawl queue for a single run. Enqueue order carries
// discovery order: the seed URL first, then sitemap URLs, then page links in
// document order. It is owned by the run goroutine, so no locking.
type Frontier struct {
	queue   []string
	seen    map[string]struct{} // every URL ever enqueued, queued or popped
	visited map[string]struct{} // URLs actually fetched this run
}

func NewFrontier() *Frontier {
	return &Frontier{
		seen:    make(map[string]struct{}),
		visited: make(map[string]struct{}),
	}
}

// Enqueue adds a normalized URL unless it was ever enqueued before. A URL
// popped and skipped (robots, unsafe origin) stays in seen, so rediscovering
// it through another page never re-queues it. Reports whether the URL was
// added.
func (f *Frontier) Enqueue(normalizedURL string) bool {
	if _, ok := f.seen[normalizedURL]; ok {
		return false
	}
	f.seen[normalizedURL] = struct{}{}
	f.queue = append(f.queue, normalizedURL)
	return true
}

// Pop removes and returns the oldest queued URL.
func (f *Frontier) Pop() (string, bool) {
	if len(f.queue) == 0 {
		return "", false
	}
	next := f.queue[0]
	f.queue = f.queue[1:]
	return next, true
}

// MarkVisited records that a URL was fetched.
func (f *Frontier) MarkVisited(normalizedURL string) {
	f.visited[normalizedURL] = struct{}{}
}

// Visited reports whether a URL was fetched this run.
func (f *Frontier) Visited(normalizedURL string) bool {
	_, ok := f.visited[normalizedURL]
	return ok
}

// QueuedLen is the number of URLs waiting to be crawled.
func (f *Frontier) QueuedLen() int {
	return len(f.queue)
}

// VisitedCount is the number of URLs fetched so far.
func (f *Frontier) VisitedCount() int {
	return len(f.visited)
}

// Discard drops all queued entries. Used on cancellation; visited bookkeeping
// stays intact so partial results remain consistent.
func (f *Frontier) Discard() {
	f.queue = nil
}
