package schema

import (
	"encoding/csv"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// ToMap flattens a subtree into a plain map suitable for JSON/YAML emission,
// the manifest wire format described in spec.md §4.1 "serialization".
// Branches become nested maps; leaves become a map of parameter fields
// ("type","value","defvalue", ...), mirroring the teacher's config loader's
// habit of round-tripping through map[string]interface{} before marshalling.
func ToMap(n *Node) interface{} {
	if n == nil {
		return nil
	}
	if n.Param != nil {
		return paramToMap(n.Param)
	}
	out := make(map[string]interface{}, len(n.Children))
	for k, v := range n.Children {
		if k == "default" {
			continue
		}
		out[k] = ToMap(v)
	}
	return out
}

func paramToMap(p *Param) map[string]interface{} {
	m := map[string]interface{}{
		"type":  string(p.Type),
		"value": p.Value,
	}
	if len(p.DefValue) > 0 {
		m["defvalue"] = p.DefValue
	}
	if p.Require != "" {
		m["require"] = p.Require
	}
	if p.Lock {
		m["lock"] = p.Lock
	}
	if p.Copy {
		m["copy"] = p.Copy
	}
	if len(p.Switch) > 0 {
		m["switch"] = p.Switch
	}
	if p.ShortHelp != "" {
		m["shorthelp"] = p.ShortHelp
	}
	if p.Help != "" {
		m["help"] = p.Help
	}
	if len(p.Example) > 0 {
		m["example"] = p.Example
	}
	if len(p.FileHash) > 0 {
		m["filehash"] = p.FileHash
	}
	if len(p.Signature) > 0 {
		m["signature"] = p.Signature
	}
	if len(p.Date) > 0 {
		m["date"] = p.Date
	}
	if len(p.Author) > 0 {
		m["author"] = p.Author
	}
	if p.HashAlgo != "" {
		m["hashalgo"] = p.HashAlgo
	}
	return m
}

// MarshalYAML renders a subtree as YAML text (manifest.yaml export).
func MarshalYAML(n *Node) ([]byte, error) {
	return yaml.Marshal(ToMap(n))
}

// MarshalTCL renders a subtree as a sequence of Tcl "dict set" statements
// against a variable named scroot, the format emitted for tool-adapter
// runscripts that expect Tcl-flavoured manifests (spec.md §4.4 step 12,
// "write manifest").
func MarshalTCL(n *Node) ([]byte, error) {
	var b strings.Builder
	var walk func(node *Node, prefix []string)
	walk = func(node *Node, prefix []string) {
		if node.Param != nil {
			keyparts := make([]string, len(prefix))
			for i, p := range prefix {
				keyparts[i] = tclQuote(p)
			}
			joined := strings.Join(keyparts, " ")
			fmt.Fprintf(&b, "dict set scroot %s type %s\n", joined, tclQuote(string(node.Param.Type)))
			fmt.Fprintf(&b, "dict set scroot %s value [list %s]\n", joined, strings.Join(node.Param.Value, " "))
			return
		}
		keys := make([]string, 0, len(node.Children))
		for k := range node.Children {
			if k == "default" {
				continue
			}
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			walk(node.Children[k], append(append([]string(nil), prefix...), k))
		}
	}
	walk(n, nil)
	return []byte(b.String()), nil
}

func tclQuote(s string) string {
	if strings.ContainsAny(s, " \t{}") {
		return "{" + s + "}"
	}
	return s
}

// MarshalCSV renders every leaf keypath/value pair as a two-column CSV
// table (keypath,value), used by `sc show --format csv`.
func MarshalCSV(n *Node) ([]byte, error) {
	var b strings.Builder
	w := csv.NewWriter(&b)
	if err := w.Write([]string{"keypath", "value"}); err != nil {
		return nil, err
	}

	var rows [][]string
	var walk func(node *Node, prefix []string)
	walk = func(node *Node, prefix []string) {
		if node.Param != nil {
			rows = append(rows, []string{strings.Join(prefix, ","), strings.Join(node.Param.Value, ";")})
			return
		}
		for k, v := range node.Children {
			if k == "default" {
				continue
			}
			walk(v, append(append([]string(nil), prefix...), k))
		}
	}
	walk(n, nil)
	sort.Slice(rows, func(i, j int) bool { return rows[i][0] < rows[j][0] })
	for _, row := range rows {
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return []byte(b.String()), w.Error()
}
