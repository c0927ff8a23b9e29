// Package ids provides a single 128-bit identifier representation with
// compile-time tag types, so an OwnerToken can never be passed where a
// JoinID is expected even though both are plain UUIDs underneath.
package ids

import (
	"database/sql/driver"
	"fmt"

	"github.com/google/uuid"
)

// Identifier is an opaque 128-bit value tagged at compile time by Tag.
// Tag is never instantiated; it only selects a distinct Go type.
type Identifier[Tag any] struct {
	v uuid.UUID
}

// New generates a random (v4) identifier.
func New[Tag any]() Identifier[Tag] {
	return Identifier[Tag]{v: uuid.New()}
}

// Parse reads the canonical string form of an identifier.
func Parse[Tag any](s string) (Identifier[Tag], error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return Identifier[Tag]{}, fmt.Errorf("ids: parse: %w", err)
	}
	return Identifier[Tag]{v: u}, nil
}

// MustParse is Parse but panics on error; reserved for test fixtures and
// constants known to be valid at compile time.
func MustParse[Tag any](s string) Identifier[Tag] {
	id, err := Parse[Tag](s)
	if err != nil {
		panic(err)
	}
	return id
}

// IsEmpty reports whether this is the zero-value sentinel.
func (id Identifier[Tag]) IsEmpty() bool { return id.v == uuid.Nil }

func (id Identifier[Tag]) String() string { return id.v.String() }

// Value implements driver.Valuer so these identifiers can be passed
// directly as database/sql query arguments.
func (id Identifier[Tag]) Value() (driver.Value, error) {
	if id.IsEmpty() {
		return nil, nil
	}
	return id.v.String(), nil
}

// Scan implements sql.Scanner so rows can be read straight into a tagged
// identifier field.
func (id *Identifier[Tag]) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*id = Identifier[Tag]{}
		return nil
	case string:
		u, err := uuid.Parse(v)
		if err != nil {
			return fmt.Errorf("ids: scan string: %w", err)
		}
		*id = Identifier[Tag]{v: u}
		return nil
	case []byte:
		u, err := uuid.Parse(string(v))
		if err != nil {
			return fmt.Errorf("ids: scan bytes: %w", err)
		}
		*id = Identifier[Tag]{v: u}
		return nil
	default:
		return fmt.Errorf("ids: cannot scan %T into Identifier", src)
	}
}

// Tag markers. None of these types is ever constructed; they only exist
// to make Identifier[outboxWorkItemTag] and Identifier[joinTag] distinct
// Go types.
type (
	outboxWorkItemTag struct{}
	outboxMessageTag  struct{}
	joinTag           struct{}
	instanceTag       struct{}
	databaseTag       struct{}
	ownerTokenTag     struct{}
)

type (
	// OutboxWorkItemID identifies a single outbox row.
	OutboxWorkItemID = Identifier[outboxWorkItemTag]
	// OutboxMessageID is the stable consumer-facing id carried on a
	// message, distinct from the row's OutboxWorkItemID.
	OutboxMessageID = Identifier[outboxMessageTag]
	// JoinID identifies a join coordinator row.
	JoinID = Identifier[joinTag]
	// InstanceID identifies a per-tenant store instance handed out by a
	// provider.
	InstanceID = Identifier[instanceTag]
	// DatabaseID identifies a logical tenant database.
	DatabaseID = Identifier[databaseTag]
	// OwnerToken identifies the current holder of a claim or lease.
	OwnerToken = Identifier[ownerTokenTag]
)

// NewOwnerToken is a convenience constructor used at every claim/acquire
// call site; equivalent to New[ownerTokenTag]().
func NewOwnerToken() OwnerToken { return New[ownerTokenTag]() }

// Per-alias New/Parse helpers. Tag marker types are unexported, so callers
// outside this package cannot spell e.g. Identifier[outboxWorkItemTag]
// directly; these wrap New/Parse for each tagged alias instead.

func NewOutboxWorkItemID() OutboxWorkItemID { return New[outboxWorkItemTag]() }
func ParseOutboxWorkItemID(s string) (OutboxWorkItemID, error) { return Parse[outboxWorkItemTag](s) }

func NewOutboxMessageID() OutboxMessageID { return New[outboxMessageTag]() }
func ParseOutboxMessageID(s string) (OutboxMessageID, error) { return Parse[outboxMessageTag](s) }

func NewJoinID() JoinID { return New[joinTag]() }
func ParseJoinID(s string) (JoinID, error) { return Parse[joinTag](s) }

func NewInstanceID() InstanceID { return New[instanceTag]() }
func ParseInstanceID(s string) (InstanceID, error) { return Parse[instanceTag](s) }

func NewDatabaseID() DatabaseID { return New[databaseTag]() }
func ParseDatabaseID(s string) (DatabaseID, error) { return Parse[databaseTag](s) }

func ParseOwnerToken(s string) (OwnerToken, error) { return Parse[ownerTokenTag](s) }
