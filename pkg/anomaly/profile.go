package anomaly

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

type Severity string

const (
	SeverityInfo     = Severity("info")
	SeverityWarning  = Severity("warning")
	SeverityError    = Severity("error")
	SeverityCritical = Severity("critical")
)

// severityWeights feed the anomaly score.
var severityWeights = map[Severity]int{
	SeverityInfo:     5,
	SeverityWarning:  10,
	SeverityError:    20,
	SeverityCritical: 30,
}

type AlertType string

const (
	AlertHighFrequency  = AlertType("high-frequency")
	AlertHighVolume     = AlertType("high-volume")
	AlertOffHours       = AlertType("off-hours-access")
	AlertHighDenialRate = AlertType("high-denial-rate")
)

type RiskLevel string

const (
	RiskLow      = RiskLevel("low")
	RiskMedium   = RiskLevel("medium")
	RiskHigh     = RiskLevel("high")
	RiskCritical = RiskLevel("critical")
)

// RiskFor is the step function from score to risk level.
func RiskFor(score int) RiskLevel {
	switch {
	case score < 50:
		return RiskLow
	case score < 75:
		return RiskMedium
	case score < 90:
		return RiskHigh
	}
	return RiskCritical
}

// Alert is appended to a profile, never overwritten.
type Alert struct {
	ID       string
	Type     AlertType
	Severity Severity
	Message  string
	At       time.Time
	Read     bool
	Resolved bool
}

// Insight is a rendered recommendation with a confidence estimate.
type Insight struct {
	ID         string
	Type       string
	Text       string
	Confidence float64
	At         time.Time
}

// AccessPattern summarizes the trailing window of an owner's requests.
type AccessPattern struct {
	Hours    []int
	Days     []string
	Requests int
	Volume   int
	Duration time.Duration
}

// Profile is the per (owner, category) running state the monitor maintains.
// Profiles are never deleted, only deactivated.
type Profile struct {
	ID        uuid.UUID
	OwnerID   string
	Category  string
	Pattern   AccessPattern
	Score     int
	Risk      RiskLevel
	Alerts    []Alert
	Insights  []Insight
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

func profileKey(owner, category string) string {
	return owner + "|" + category
}

// Store is the concurrent-safe profile set. The monitor is its only writer;
// everyone else reads copies.
type Store struct {
	mu       sync.RWMutex
	profiles map[string]*Profile
}

func NewStore() *Store {
	return &Store{profiles: map[string]*Profile{}}
}

// Ensure creates the profile on first monitored access and returns a copy.
func (s *Store) Ensure(owner, category string) Profile {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := profileKey(owner, category)
	p, ok := s.profiles[key]
	if !ok {
		now := time.Now()
		p = &Profile{
			ID:        uuid.New(),
			OwnerID:   owner,
			Category:  category,
			Risk:      RiskLow,
			Active:    true,
			CreatedAt: now,
			UpdatedAt: now,
		}
		s.profiles[key] = p
	}
	return clone(p)
}

// Get returns a copy of the profile if it exists.
func (s *Store) Get(owner, category string) (Profile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[profileKey(owner, category)]
	if !ok {
		return Profile{}, false
	}
	return clone(p), true
}

// Active lists copies of every active profile.
func (s *Store) Active() []Profile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Profile
	for _, p := range s.profiles {
		if p.Active {
			out = append(out, clone(p))
		}
	}
	return out
}

// Deactivate retires a profile without deleting its history.
func (s *Store) Deactivate(owner, category string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.profiles[profileKey(owner, category)]; ok {
		p.Active = false
		p.UpdatedAt = time.Now()
	}
}

// update mutates a profile in place under the lock.
func (s *Store) update(owner, category string, fn func(*Profile)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.profiles[profileKey(owner, category)]; ok {
		fn(p)
		p.UpdatedAt = time.Now()
	}
}

func clone(p *Profile) Profile {
	cp := *p
	cp.Alerts = append([]Alert(nil), p.Alerts...)
	cp.Insights = append([]Insight(nil), p.Insights...)
	cp.Pattern.Hours = append([]int(nil), p.Pattern.Hours...)
	cp.Pattern.Days = append([]string(nil), p.Pattern.Days...)
	return cp
}
