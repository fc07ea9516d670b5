package scheduler

// ScheduleSyncCallback queues cb on the synchronous queue. The queue is
// flushed by FlushSyncCallbackQueue or, failing that, by an immediate
// priority task on the next slice.
func (s *Scheduler) ScheduleSyncCallback(cb SyncCallback) {
	s.syncQueue = append(s.syncQueue, cb)
	if s.immediateQueueTask == nil {
		s.scheduleImmediateFlush()
	}
}

// FlushSyncCallbackQueue runs every queued sync callback now. If one fails,
// the callbacks after it stay queued and the error is returned.
func (s *Scheduler) FlushSyncCallbackQueue() error {
	if s.immediateQueueTask != nil {
		t := s.immediateQueueTask
		s.immediateQueueTask = nil
		s.CancelCallback(t)
	}
	return s.flushSyncCallbackQueueImpl()
}

func (s *Scheduler) flushSyncCallbackQueueImpl() error {
	if s.isFlushingSyncQueue || len(s.syncQueue) == 0 {
		return nil
	}
	s.isFlushingSyncQueue = true
	prevPriority := s.currentPriority
	s.currentPriority = ImmediatePriority
	defer func() {
		s.currentPriority = prevPriority
		s.isFlushingSyncQueue = false
	}()

	// Callbacks may queue more sync work; keep going until it is drained.
	for i := 0; i < len(s.syncQueue); i++ {
		if err := s.syncQueue[i](); err != nil {
			rest := s.syncQueue[i+1:]
			s.syncQueue = append([]SyncCallback(nil), rest...)
			if len(s.syncQueue) > 0 && s.immediateQueueTask == nil {
				s.scheduleImmediateFlush()
			}
			return err
		}
	}
	s.syncQueue = s.syncQueue[:0]
	return nil
}

func (s *Scheduler) scheduleImmediateFlush() {
	s.immediateQueueTask = s.ScheduleCallback(ImmediatePriority, func(bool) Callback {
		s.immediateQueueTask = nil
		if err := s.flushSyncCallbackQueueImpl(); err != nil {
			s.log.WithError(err).Warn("sync callback failed outside of a flush")
		}
		return nil
	})
}
