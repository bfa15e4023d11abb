package supervisor

// SetBeforeSave installs a hook that runs after a job commits to saving and
// before the transcript is written.
func SetBeforeSave(s *Supervisor, fn func(id string)) {
	s.beforeSave = fn
}
