// Package prefs holds the typed sync and patient settings. Persistence of
// these scalars is outside the pipeline's scope; the store is seeded from
// configuration and mutated through typed setters.
package prefs

import "sync"

const (
	defaultGivenName  = "test"
	defaultFamilyName = "patient"
)

// ChangeHook is invoked after a sync setting changes. Consumed only by the
// scheduler to re-arm its periodic slot.
type ChangeHook func()

// Store is a concurrency-safe settings holder.
type Store struct {
	mu sync.RWMutex

	allowDuplicates   bool
	cleanupAgeDays    int
	autoSyncFrequency int
	autoSyncKinds     []string

	patientID  string
	givenName  string
	familyName string

	onChange ChangeHook
}

// Seed captures the initial settings loaded from configuration.
type Seed struct {
	AllowDuplicates   bool
	CleanupAgeDays    int
	AutoSyncFrequency int
	AutoSyncKinds     []string
	GivenName         string
	FamilyName        string
}

// NewStore builds a Store from seed values.
func NewStore(seed Seed) *Store {
	return &Store{
		allowDuplicates:   seed.AllowDuplicates,
		cleanupAgeDays:    seed.CleanupAgeDays,
		autoSyncFrequency: seed.AutoSyncFrequency,
		autoSyncKinds:     append([]string(nil), seed.AutoSyncKinds...),
		givenName:         seed.GivenName,
		familyName:        seed.FamilyName,
	}
}

// OnChange registers the change hook. Only one consumer is supported.
func (s *Store) OnChange(hook ChangeHook) {
	s.mu.Lock()
	s.onChange = hook
	s.mu.Unlock()
}

func (s *Store) notify() {
	s.mu.RLock()
	hook := s.onChange
	s.mu.RUnlock()
	if hook != nil {
		hook()
	}
}

// AllowDuplicates reports whether dedup filtering is bypassed.
func (s *Store) AllowDuplicates() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.allowDuplicates
}

// SetAllowDuplicates updates the duplicate-upload setting.
func (s *Store) SetAllowDuplicates(value bool) {
	s.mu.Lock()
	s.allowDuplicates = value
	s.mu.Unlock()
	s.notify()
}

// CleanupAgeDays is the mark-retention age in days; zero disables cleanup.
func (s *Store) CleanupAgeDays() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cleanupAgeDays
}

// SetCleanupAgeDays updates the retention age.
func (s *Store) SetCleanupAgeDays(days int) {
	s.mu.Lock()
	s.cleanupAgeDays = days
	s.mu.Unlock()
	s.notify()
}

// AutoSyncFrequency is the raw frequency setting (0 = disabled).
func (s *Store) AutoSyncFrequency() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.autoSyncFrequency
}

// SetAutoSyncFrequency updates the frequency and fires the change hook so the
// scheduler replaces its periodic registration.
func (s *Store) SetAutoSyncFrequency(value int) {
	s.mu.Lock()
	s.autoSyncFrequency = value
	s.mu.Unlock()
	s.notify()
}

// AutoSyncKinds is the kind set synced by periodic runs.
func (s *Store) AutoSyncKinds() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.autoSyncKinds...)
}

// SetAutoSyncKinds replaces the auto-sync kind set.
func (s *Store) SetAutoSyncKinds(kinds []string) {
	s.mu.Lock()
	s.autoSyncKinds = append([]string(nil), kinds...)
	s.mu.Unlock()
	s.notify()
}

// PatientID is the cached remote patient id; empty when unresolved.
func (s *Store) PatientID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.patientID
}

// SetPatientID caches the server-assigned patient id.
func (s *Store) SetPatientID(id string) {
	s.mu.Lock()
	s.patientID = id
	s.mu.Unlock()
}

// ClearPatientID drops a patient id the server no longer recognizes.
func (s *Store) ClearPatientID() {
	s.mu.Lock()
	s.patientID = ""
	s.mu.Unlock()
}

// PatientName returns the stored given and family name, falling back to
// placeholder values when unset.
func (s *Store) PatientName() (string, string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	given, family := s.givenName, s.familyName
	if given == "" {
		given = defaultGivenName
	}
	if family == "" {
		family = defaultFamilyName
	}
	return given, family
}

// SetPatientName stores both name parts.
func (s *Store) SetPatientName(given, family string) {
	s.mu.Lock()
	s.givenName = given
	s.familyName = family
	s.mu.Unlock()
}
