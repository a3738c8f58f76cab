package engine

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/opsline/opsline/pkg/inventory"
)

// Operation produces the host-specific command sequence for one declarative
// action. Implementations must be pure with respect to the run and
// deterministic for a given host context.
type Operation interface {
	// Name is the human-readable operation name, e.g. "files/file".
	Name() string

	// Compile produces the ordered command sequence for one host.
	Compile(host *inventory.Host) ([]Command, error)
}

// OpOptions carries the escalation and tolerance settings for one AddOp
// call. The zero value inherits the config defaults.
type OpOptions struct {
	Sudo         bool
	SudoUser     string
	SuUser       string
	IgnoreErrors bool
	Timeout      time.Duration
}

// opIdentity is the canonical payload hashed to deduplicate operations.
// Escalation participates in identity: the same operation declared under
// different sudo/su settings produces observably different remote behavior,
// so each combination is its own entry in the run order.
type opIdentity struct {
	Name     string    `json:"name"`
	Args     Operation `json:"args"`
	Sudo     bool      `json:"sudo"`
	SudoUser string    `json:"sudo_user"`
	SuUser   string    `json:"su_user"`
}

// opHash computes the deterministic identity digest for an operation.
// Struct fields encode in declaration order and map keys sort, so equal
// argument sets always produce equal digests.
func opHash(op Operation, opts OpOptions) (string, error) {
	payload, err := json.Marshal(opIdentity{
		Name:     op.Name(),
		Args:     op,
		Sudo:     opts.Sudo,
		SudoUser: opts.SudoUser,
		SuUser:   opts.SuUser,
	})
	if err != nil {
		return "", fmt.Errorf("failed to hash operation %s: %w", op.Name(), err)
	}
	sum := sha1.Sum(payload)
	return hex.EncodeToString(sum[:]), nil
}

// AddOp registers an operation and compiles it for every connected host.
// Repeat declarations with an identical operation and settings collapse to
// one entry in the run order; their display names accumulate as a set.
// Compilation failure for any host aborts immediately with a CompileError:
// ignore-errors governs execution failures only, never compilation.
func AddOp(state *State, op Operation, opts OpOptions) (string, error) {
	applyEscalationDefaults(&opts, state)

	if opts.SuUser != "" && (opts.Sudo || opts.SudoUser != "") {
		log.Warn().
			Str("op", op.Name()).
			Str("su_user", opts.SuUser).
			Msg("operation sets both sudo and su; su takes precedence")
	}

	hash, err := opHash(op, opts)
	if err != nil {
		return "", err
	}

	meta, seen := state.opMeta[hash]
	if !seen {
		meta = &OpMeta{
			Names:        make(map[string]struct{}),
			Sudo:         opts.Sudo,
			SudoUser:     opts.SudoUser,
			SuUser:       opts.SuUser,
			IgnoreErrors: opts.IgnoreErrors,
			Timeout:      opts.Timeout,
		}
		state.opMeta[hash] = meta
		state.opOrder = append(state.opOrder, hash)
	}
	meta.Names[op.Name()] = struct{}{}

	for _, host := range state.Inventory.ConnectedHosts() {
		commands, err := op.Compile(host)
		if err != nil {
			return "", &CompileError{Host: host.Name, Op: op.Name(), Err: err}
		}
		hostOps := state.ops[host.Name]
		if hostOps == nil {
			hostOps = make(map[string]*CompiledOp)
			state.ops[host.Name] = hostOps
		}
		hostOps[hash] = &CompiledOp{Commands: commands}
	}

	log.Debug().
		Str("op", op.Name()).
		Str("hash", hash).
		Bool("deduplicated", seen).
		Msg("operation added")

	return hash, nil
}

// applyEscalationDefaults fills unset escalation fields from the config.
func applyEscalationDefaults(opts *OpOptions, state *State) {
	if opts.Sudo || opts.SudoUser != "" || opts.SuUser != "" {
		return
	}
	opts.Sudo = state.Config.Sudo
	opts.SudoUser = state.Config.SudoUser
	opts.SuUser = state.Config.SuUser
}
