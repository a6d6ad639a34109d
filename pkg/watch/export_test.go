package watch

// Queue records a source change as if the file system had reported it
func (w *Watcher) Queue(path string) { w.queue(path) }
