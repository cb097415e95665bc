package transfer

import (
	"slices"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.mongodb.org/mongo-driver/v2/x/mongo/driver/connstring"

	"github.com/Johndevils/Mongodb-bot/config"
	"github.com/Johndevils/Mongodb-bot/errors"
)

// Policy selects how the Writer handles documents whose _id already exists
// on the target.
type Policy string

const (
	// PolicySkip leaves the existing target document in place.
	PolicySkip Policy = "skip"

	// PolicyOverwrite replaces the existing target document.
	PolicyOverwrite Policy = "overwrite"

	// PolicyFail fails the whole batch on the first duplicate.
	PolicyFail Policy = "fail"
)

// Request describes one transfer. It is immutable once submitted: Run
// operates on a copy and never mutates the caller's value.
type Request struct {
	SourceURI        string        `json:"sourceURI" validate:"required"`
	TargetURI        string        `json:"targetURI" validate:"required"`
	SourceCollection string        `json:"sourceCollection" validate:"required"`
	TargetCollection string        `json:"targetCollection" validate:"required"`
	BatchSize        int           `json:"batchSize,omitempty" validate:"gte=0,lte=10000"`
	Policy           Policy        `json:"policy,omitempty" validate:"omitempty,oneof=skip overwrite fail"`
	Timeout          time.Duration `json:"timeout,omitempty" validate:"gte=0"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// WithDefaults returns a copy of the request with zero-valued tunables
// replaced by the configured defaults.
func (r Request) WithDefaults(cfg config.TransferConfig) Request {
	if r.BatchSize == 0 {
		r.BatchSize = cfg.BatchSize
	}
	if r.Policy == "" {
		r.Policy = Policy(cfg.DuplicatePolicy)
	}
	if r.Timeout == 0 {
		r.Timeout = cfg.Timeout
	}

	return r
}

// Validate checks field constraints, parses both connection strings and
// rejects a request whose source and target are the same namespace.
func (r Request) Validate() error {
	if err := validate.Struct(r); err != nil {
		return errors.Wrap(err, "invalid request")
	}

	srcCS, err := connstring.Parse(r.SourceURI)
	if err != nil {
		return errors.Wrap(err, "source URI")
	}
	tgtCS, err := connstring.Parse(r.TargetURI)
	if err != nil {
		return errors.Wrap(err, "target URI")
	}

	if srcCS.Database == "" {
		return errors.New("source URI: no database in connection string")
	}
	if tgtCS.Database == "" {
		return errors.New("target URI: no database in connection string")
	}

	if sameDeployment(srcCS, tgtCS) &&
		srcCS.Database == tgtCS.Database &&
		r.SourceCollection == r.TargetCollection {
		return ErrSameNamespace
	}

	return nil
}

// sameDeployment reports whether two parsed connection strings address the
// same set of hosts. Host order is not significant.
func sameDeployment(a, b *connstring.ConnString) bool {
	if len(a.Hosts) != len(b.Hosts) {
		return false
	}

	ah := normalizedHosts(a)
	bh := normalizedHosts(b)

	return slices.Equal(ah, bh)
}

func normalizedHosts(cs *connstring.ConnString) []string {
	hosts := make([]string, len(cs.Hosts))
	for i, h := range cs.Hosts {
		hosts[i] = strings.ToLower(h)
	}
	slices.Sort(hosts)

	return hosts
}
