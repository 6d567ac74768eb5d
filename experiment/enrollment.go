// Package experiment decides whether an account participates in a named
// server-side experiment. Decisions are deterministic for a given (entity,
// experiment) pair so an account's enrollment is stable across requests and
// instances.
package experiment

import (
	"hash/fnv"

	"github.com/google/uuid"
)

// Config describes one experiment's enrollment rules.
type Config struct {
	// EnrolledUUIDs are always-considered accounts; they enroll with
	// UUIDEnrollmentPercentage instead of the general percentage.
	EnrolledUUIDs []uuid.UUID

	// UUIDEnrollmentPercentage applies to accounts in EnrolledUUIDs, 0-100.
	UUIDEnrollmentPercentage int

	// EnrollmentPercentage applies to everyone else, 0-100.
	EnrollmentPercentage int
}

// Manager answers enrollment queries from a static configuration fixed at
// construction.
type Manager struct {
	experiments map[string]Config
}

// NewManager creates a manager from the experiment configurations.
func NewManager(experiments map[string]Config) *Manager {
	return &Manager{experiments: experiments}
}

// IsEnrolled reports whether the account participates in the named experiment.
// Unknown experiments enroll nobody.
func (m *Manager) IsEnrolled(aci uuid.UUID, experimentName string) bool {
	config, exists := m.experiments[experimentName]
	if !exists {
		return false
	}

	for _, selected := range config.EnrolledUUIDs {
		if selected == aci {
			return enrolled(aci.String(), experimentName, config.UUIDEnrollmentPercentage)
		}
	}

	return enrolled(aci.String(), experimentName, config.EnrollmentPercentage)
}

// enrolled buckets the entity into one of 100 stable buckets and admits it when
// its bucket falls below the percentage.
func enrolled(entity, experimentName string, percentage int) bool {
	bucket := int((hash(entity)^hash(experimentName))&0x7fffffff) % 100
	return bucket < percentage
}

func hash(s string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(s))
	return h.Sum32()
}
