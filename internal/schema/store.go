// Package schema implements the typed configuration schema store (C1):
// keypath get/set/add/getkeys/getdict/valid/merge, the "default" wildcard
// subtree, and manifest serialization/validation. It is the Go
// reinterpretation of spec.md §3.1-3.2 and §4.1.
package schema

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/alexisbeaulieu97/sc/internal/logger"
	"github.com/alexisbeaulieu97/sc/pkg/scerrors"
)

// Store holds one hierarchical configuration tree plus the monotonic
// object-level error latch described in spec.md §7 ("once set, it stays
// set for the life of that process").
type Store struct {
	mu    sync.RWMutex
	root  *Node
	error bool
	log   *logger.Logger

	// onLogLevel fires when ['loglevel'] is set, so the active logger can
	// be reconfigured immediately (spec.md §4.1 "Special case").
	onLogLevel func(level string)
}

// New creates an empty store. Schema parameters are installed by calling
// Declare (directly, or via a plug-in's Setup(chip)-equivalent).
func New(log *logger.Logger) *Store {
	return &Store{root: newBranch(), log: log}
}

// SetLogger rebinds the store's logger, used when cloning a store into a
// fresh per-worker context (spec.md §5 "Logger lifecycle").
func (s *Store) SetLogger(log *logger.Logger) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.log = log
}

// OnLogLevelChange registers the callback invoked when 'loglevel' is set.
func (s *Store) OnLogLevelChange(fn func(level string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onLogLevel = fn
}

// Error reports whether the object-level error flag has been raised.
func (s *Store) Error() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.error
}

// ClearError resets the error flag (spec.md §7). The orchestrator does not
// call it.
func (s *Store) ClearError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.error = false
}

func (s *Store) fail(err error) error {
	s.error = true
	if s.log != nil {
		s.log.Error(err, "schema error")
	}
	return err
}

func keyStr(keypath []string) string {
	return strings.Join(keypath, ",")
}

// Declare installs a new parameter at keypath (schema population, the
// equivalent of a tool/target/pdk plug-in's Setup(chip) populating the
// schema before any Get/Set call touches it).
func (s *Store) Declare(keypath []string, p Param) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(keypath) == 0 {
		return s.fail(scerrors.NewSchemaError("", "", fmt.Errorf("empty keypath")))
	}

	cur := s.root
	for _, seg := range keypath[:len(keypath)-1] {
		if cur.Children == nil {
			return s.fail(scerrors.NewSchemaError(keyStr(keypath), "", fmt.Errorf("keypath traverses a leaf parameter")))
		}
		child, ok := cur.Children[seg]
		if !ok {
			child = newBranch()
			cur.Children[seg] = child
		}
		cur = child
	}

	last := keypath[len(keypath)-1]
	if cur.Children == nil {
		return s.fail(scerrors.NewSchemaError(keyStr(keypath), "", fmt.Errorf("keypath traverses a leaf parameter")))
	}
	pcopy := p
	cur.Children[last] = &Node{Param: &pcopy}
	return nil
}

// resolveExisting walks an exact keypath with no default-template
// instantiation; used by read-only operations.
func (s *Store) resolveExisting(keypath []string) (*Node, error) {
	cur := s.root
	for i, seg := range keypath {
		if cur.Children == nil {
			return nil, fmt.Errorf("keypath [%s] does not exist (segment %q is a leaf)", keyStr(keypath), strings.Join(keypath[:i], ","))
		}
		child, ok := cur.Children[seg]
		if !ok {
			return nil, fmt.Errorf("keypath [%s] does not exist", keyStr(keypath))
		}
		cur = child
	}
	return cur, nil
}

// resolveOrCreate walks keypath, instantiating a deep copy of a sibling
// 'default' template the first time a write passes through an absent key
// (spec.md §3.2).
func (s *Store) resolveOrCreate(keypath []string) (*Node, error) {
	cur := s.root
	for i, seg := range keypath {
		if cur.Children == nil {
			return nil, fmt.Errorf("keypath [%s] does not exist (segment %q is a leaf)", keyStr(keypath), strings.Join(keypath[:i], ","))
		}
		child, ok := cur.Children[seg]
		if !ok {
			def, hasDefault := cur.Children["default"]
			if !hasDefault {
				return nil, fmt.Errorf("keypath [%s] does not exist", keyStr(keypath))
			}
			child = def.clone()
			cur.Children[seg] = child
		}
		cur = child
	}
	return cur, nil
}

// Get returns a typed field value for keypath (spec.md §4.1 "get").
func (s *Store) Get(keypath []string, field string) (interface{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	node, err := s.resolveExisting(keypath)
	if err != nil {
		return nil, s.fail(scerrors.NewSchemaError(keyStr(keypath), field, err))
	}
	if node.Param == nil {
		return nil, s.fail(scerrors.NewSchemaError(keyStr(keypath), field, fmt.Errorf("keypath refers to a branch, not a parameter")))
	}

	return fieldValue(node.Param, field)
}

// fieldValue extracts and coerces the requested field off a Param.
func fieldValue(p *Param, field string) (interface{}, error) {
	raw, err := rawField(p, field)
	if err != nil {
		return nil, err
	}
	if field != "value" && field != "defvalue" {
		// Non-typed fields (switch, help, filehash, ...) are returned
		// as their native string/[]string/bool representation.
		return raw, nil
	}

	values, _ := raw.([]string)
	if p.IsList {
		out := make([]interface{}, 0, len(values))
		for _, v := range values {
			parsed, err := parseScalar(p.Type, v)
			if err != nil {
				return nil, err
			}
			out = append(out, parsed)
		}
		return out, nil
	}
	if len(values) == 0 {
		return nil, nil
	}
	return parseScalar(p.Type, values[0])
}

func rawField(p *Param, field string) (interface{}, error) {
	switch field {
	case "value":
		return p.Value, nil
	case "defvalue":
		return p.DefValue, nil
	case "type":
		return string(p.Type), nil
	case "require":
		return p.Require, nil
	case "lock":
		return p.Lock, nil
	case "copy":
		return p.Copy, nil
	case "switch":
		return p.Switch, nil
	case "shorthelp":
		return p.ShortHelp, nil
	case "help":
		return p.Help, nil
	case "example":
		return p.Example, nil
	case "filehash":
		return p.FileHash, nil
	case "signature":
		return p.Signature, nil
	case "date":
		return p.Date, nil
	case "author":
		return p.Author, nil
	case "hashalgo":
		return p.HashAlgo, nil
	default:
		return nil, fmt.Errorf("field %q is not a valid parameter field", field)
	}
}

// Set writes a field value at keypath, materializing 'default' templates as
// needed (spec.md §4.1 "set"). clobber=false skips the write when the
// current value is non-empty.
func (s *Store) Set(keypath []string, value interface{}, field string, clobber bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setLocked(keypath, value, field, clobber)
}

func (s *Store) setLocked(keypath []string, value interface{}, field string, clobber bool) error {
	node, err := s.resolveOrCreate(keypath)
	if err != nil {
		return s.fail(scerrors.NewSchemaError(keyStr(keypath), field, err))
	}
	if node.Param == nil {
		return s.fail(scerrors.NewSchemaError(keyStr(keypath), field, fmt.Errorf("keypath refers to a branch, not a parameter")))
	}
	p := node.Param

	if p.Lock {
		// Silently ignored per spec.md §3.5.
		return nil
	}

	if !clobber && field == "value" && len(p.Value) > 0 {
		return nil
	}

	if err := assignField(p, field, value); err != nil {
		return s.fail(scerrors.NewSchemaError(keyStr(keypath), field, err))
	}

	if field == "value" && len(keypath) == 1 && keypath[0] == "loglevel" {
		if s.onLogLevel != nil {
			if lvl, ok := value.(string); ok {
				s.onLogLevel(lvl)
			} else if len(p.Value) > 0 {
				s.onLogLevel(p.Value[0])
			}
		}
	}

	return nil
}

// assignField coerces and stores value into the named field, applying the
// list-auto-wrap and scalar-rejects-list rules of spec.md §4.1.
func assignField(p *Param, field string, value interface{}) error {
	switch field {
	case "value":
		vals, err := coerceValues(p, value)
		if err != nil {
			return err
		}
		p.Value = vals
		return nil
	case "defvalue":
		vals, err := coerceValues(p, value)
		if err != nil {
			return err
		}
		p.DefValue = vals
		return nil
	case "lock":
		b, ok := toBool(value)
		if !ok {
			return fmt.Errorf("field 'lock' requires a bool")
		}
		p.Lock = b
		return nil
	case "copy":
		b, ok := toBool(value)
		if !ok {
			return fmt.Errorf("field 'copy' requires a bool")
		}
		p.Copy = b
		return nil
	case "require":
		s, ok := value.(string)
		if !ok {
			return fmt.Errorf("field 'require' requires a string")
		}
		p.Require = s
		return nil
	case "hashalgo":
		s, ok := value.(string)
		if !ok {
			return fmt.Errorf("field 'hashalgo' requires a string")
		}
		p.HashAlgo = s
		return nil
	case "switch":
		p.Switch = toStringSlice(value)
		return nil
	case "shorthelp":
		s, _ := value.(string)
		p.ShortHelp = s
		return nil
	case "help":
		s, _ := value.(string)
		p.Help = s
		return nil
	case "example":
		p.Example = toStringSlice(value)
		return nil
	default:
		return fmt.Errorf("field %q is not settable via Set", field)
	}
}

func toBool(v interface{}) (bool, bool) {
	switch val := v.(type) {
	case bool:
		return val, true
	case string:
		low := strings.ToLower(val)
		if low == "true" {
			return true, true
		}
		if low == "false" {
			return false, true
		}
	}
	return false, false
}

func toStringSlice(v interface{}) []string {
	switch val := v.(type) {
	case []string:
		return append([]string(nil), val...)
	case string:
		return []string{val}
	default:
		return nil
	}
}

// coerceValues implements the scalar/list coercion matrix of spec.md §4.1:
// scalars accept non-list inputs (a single-element list is an error for a
// scalar); lists accept scalars by auto-wrapping.
func coerceValues(p *Param, value interface{}) ([]string, error) {
	items, isSlice := toInterfaceSlice(value)

	if !p.IsList {
		if isSlice {
			return nil, fmt.Errorf("scalar parameter cannot accept a list value")
		}
		s, err := formatScalar(p.Type, value)
		if err != nil {
			return nil, err
		}
		return []string{s}, nil
	}

	if !isSlice {
		items = []interface{}{value}
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		s, err := formatScalar(p.Type, it)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func toInterfaceSlice(v interface{}) ([]interface{}, bool) {
	switch val := v.(type) {
	case []interface{}:
		return val, true
	case []string:
		out := make([]interface{}, len(val))
		for i, s := range val {
			out[i] = s
		}
		return out, true
	case []int:
		out := make([]interface{}, len(val))
		for i, s := range val {
			out[i] = s
		}
		return out, true
	case []float64:
		out := make([]interface{}, len(val))
		for i, s := range val {
			out[i] = s
		}
		return out, true
	case [][2]string:
		out := make([]interface{}, len(val))
		for i, s := range val {
			out[i] = s
		}
		return out, true
	default:
		return nil, false
	}
}

// Add appends a value to a list-typed parameter (spec.md §4.1 "add").
func (s *Store) Add(keypath []string, value interface{}, field string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	node, err := s.resolveOrCreate(keypath)
	if err != nil {
		return s.fail(scerrors.NewSchemaError(keyStr(keypath), field, err))
	}
	if node.Param == nil {
		return s.fail(scerrors.NewSchemaError(keyStr(keypath), field, fmt.Errorf("keypath refers to a branch, not a parameter")))
	}
	p := node.Param
	if p.Lock {
		return nil
	}

	switch field {
	case "value":
		if !p.IsList {
			return s.fail(scerrors.NewSchemaError(keyStr(keypath), field, fmt.Errorf("add is not valid on a scalar parameter")))
		}
		str, err := formatScalar(p.Type, value)
		if err != nil {
			return s.fail(scerrors.NewSchemaError(keyStr(keypath), field, err))
		}
		p.Value = append(p.Value, str)
		return nil
	case "filehash":
		s2, _ := value.(string)
		p.FileHash = append(p.FileHash, s2)
		return nil
	case "signature":
		s2, _ := value.(string)
		p.Signature = append(p.Signature, s2)
		return nil
	case "date":
		s2, _ := value.(string)
		p.Date = append(p.Date, s2)
		return nil
	case "author":
		s2, _ := value.(string)
		p.Author = append(p.Author, s2)
		return nil
	default:
		return s.fail(scerrors.NewSchemaError(keyStr(keypath), field, fmt.Errorf("field %q is not append-only", field)))
	}
}

// GetKeys returns immediate child keys (excluding 'default'), or, with an
// empty keypath, every leaf keypath in the store.
func (s *Store) GetKeys(keypath ...string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(keypath) == 0 {
		return s.allLeafKeypaths(), nil
	}

	node, err := s.resolveExisting(keypath)
	if err != nil {
		return nil, s.fail(scerrors.NewSchemaError(keyStr(keypath), "", err))
	}
	if node.Children == nil {
		return nil, s.fail(scerrors.NewSchemaError(keyStr(keypath), "", fmt.Errorf("keypath refers to a parameter, not a branch")))
	}
	keys := make([]string, 0, len(node.Children))
	for k := range node.Children {
		if k == "default" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *Store) allLeafKeypaths() []string {
	var out []string
	var walk func(n *Node, prefix []string)
	walk = func(n *Node, prefix []string) {
		if n.Param != nil {
			out = append(out, strings.Join(prefix, ","))
			return
		}
		for k, child := range n.Children {
			if k == "default" {
				continue
			}
			walk(child, append(append([]string(nil), prefix...), k))
		}
	}
	walk(s.root, nil)
	sort.Strings(out)
	return out
}

// GetDict returns a deep copy of the subtree at keypath.
func (s *Store) GetDict(keypath ...string) (*Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	node, err := s.resolveExisting(keypath)
	if err != nil {
		return nil, s.fail(scerrors.NewSchemaError(keyStr(keypath), "", err))
	}
	return node.clone(), nil
}

// Valid reports whether keypath matches a known schema path. When
// defaultValid is true, a 'default' sibling counts as a match even if the
// concrete key was never instantiated.
func (s *Store) Valid(keypath []string, defaultValid bool) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cur := s.root
	for _, seg := range keypath {
		if cur.Children == nil {
			return false
		}
		child, ok := cur.Children[seg]
		if !ok {
			if defaultValid {
				if def, hasDefault := cur.Children["default"]; hasDefault {
					child = def
				} else {
					return false
				}
			} else {
				return false
			}
		}
		cur = child
	}
	return true
}

// Clone deep-copies the entire store, used when spawning a per-worker
// process-substitute (spec.md §4.6 step 7, §5).
func (s *Store) Clone() *Store {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return &Store{root: s.root.clone(), error: s.error, log: s.log, onLogLevel: s.onLogLevel}
}

// Root exposes the underlying tree for serialization and prune. Callers
// must treat the result as read-only; use Clone for a mutable copy.
func (s *Store) Root() *Node {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.root
}

// DeclareRunDefaults installs the "default"/"default" wildcard templates
// that task.Runner relies on to materialize the ad-hoc flowstatus/metric/
// record keypaths it writes under metric/<step>/<index>/..., spec.md §4.6's
// per-task bookkeeping namespaces. A caller builds these once on the parent
// store before orchestrator.Run clones it per worker; Declare is idempotent
// against an already-populated branch, so calling this more than once is
// harmless.
func (s *Store) DeclareRunDefaults() error {
	decls := []struct {
		keypath []string
		p       Param
	}{
		{[]string{"flowstatus", "default", "default", "error"}, Param{Type: TypeBool, ShortHelp: "true if this task errored"}},
		{[]string{"flowstatus", "default", "default", "select"}, Param{Type: TypeStr, IsList: true, ShortHelp: "resolved upstream (step,index) set chosen by a built-in"}},
		{[]string{"metric", "default", "default", "exetime", "real"}, Param{Type: TypeFloat, ShortHelp: "wall clock subprocess time, seconds"}},
		{[]string{"metric", "default", "default", "tasktime", "real"}, Param{Type: TypeFloat, ShortHelp: "total task time including setup, seconds"}},
		{[]string{"metric", "default", "default", "exetime", "goal"}, Param{Type: TypeFloat, ShortHelp: "target wall clock subprocess time, seconds"}},
		{[]string{"metric", "default", "default", "tasktime", "goal"}, Param{Type: TypeFloat, ShortHelp: "target total task time, seconds"}},
		{[]string{"record", "default", "default", "runid"}, Param{Type: TypeStr, ShortHelp: "unique per-task run identifier"}},
		{[]string{"record", "default", "default", "starttime"}, Param{Type: TypeStr, ShortHelp: "task start timestamp"}},
		{[]string{"record", "default", "default", "endtime"}, Param{Type: TypeStr, ShortHelp: "task end timestamp"}},
		{[]string{"record", "default", "default", "machine"}, Param{Type: TypeStr, ShortHelp: "hostname the task ran on"}},
		{[]string{"record", "default", "default", "platform"}, Param{Type: TypeStr, ShortHelp: "OS platform the task ran on"}},
		{[]string{"record", "default", "default", "arch"}, Param{Type: TypeStr, ShortHelp: "CPU architecture the task ran on"}},
		{[]string{"record", "default", "default", "userid"}, Param{Type: TypeStr, ShortHelp: "user the task ran as"}},
		{[]string{"record", "default", "default", "scversion"}, Param{Type: TypeStr, ShortHelp: "driver version that ran the task"}},
		{[]string{"record", "default", "default", "toolversion"}, Param{Type: TypeStr, ShortHelp: "tool version reported by the bound executable"}},
		{[]string{"record", "default", "default", "gatewayipv4"}, Param{Type: TypeStr, ShortHelp: "default gateway IPv4 address of the host that ran the task"}},
		{[]string{"record", "default", "default", "gatewaymac"}, Param{Type: TypeStr, ShortHelp: "MAC address of the interface that reaches the default gateway"}},
		{[]string{"record", "default", "default", "cloudregion"}, Param{Type: TypeStr, ShortHelp: "cloud region the task ran in, if detected"}},
		{[]string{"record", "default", "default", "distroid"}, Param{Type: TypeStr, ShortHelp: "OS distribution ID the task ran on"}},
		{[]string{"record", "default", "default", "distrover"}, Param{Type: TypeStr, ShortHelp: "OS distribution version the task ran on"}},
		{[]string{"record", "default", "default", "kernelver"}, Param{Type: TypeStr, ShortHelp: "kernel release the task ran on"}},
	}
	for _, d := range decls {
		if err := s.Declare(d.keypath, d.p); err != nil {
			return fmt.Errorf("declare run defaults %v: %w", d.keypath, err)
		}
	}
	return nil
}
