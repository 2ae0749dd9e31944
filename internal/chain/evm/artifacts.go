package evm

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/tidwall/gjson"

	bserr "github.com/R3E-Network/stablecoin_bootstrap/internal/errors"
)

// Artifacts resolves contract creation bytecode from compiler output. Both
// hardhat layouts (<dir>/<Name>.sol/<Name>.json, <dir>/<Name>.json) and
// foundry's {"bytecode":{"object":...}} shape are understood.
type Artifacts struct {
	dir   string
	mu    sync.Mutex
	cache map[string]string
}

// NewArtifacts creates a resolver rooted at dir.
func NewArtifacts(dir string) *Artifacts {
	return &Artifacts{dir: dir, cache: make(map[string]string)}
}

func (a *Artifacts) candidates(name string) []string {
	return []string{
		filepath.Join(a.dir, name+".sol", name+".json"),
		filepath.Join(a.dir, name+".json"),
	}
}

// Bytecode returns the 0x-prefixed creation bytecode of name.
func (a *Artifacts) Bytecode(name string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if code, ok := a.cache[name]; ok {
		return code, nil
	}

	var data []byte
	var path string
	for _, p := range a.candidates(name) {
		b, err := os.ReadFile(filepath.Clean(p))
		if err == nil {
			data, path = b, p
			break
		}
	}
	if data == nil {
		return "", bserr.Newf(bserr.KindConstructorRejected, "artifact", "no artifact for %s under %s", name, a.dir)
	}
	if !gjson.ValidBytes(data) {
		return "", bserr.Newf(bserr.KindConstructorRejected, "artifact", "%s is not valid JSON", path)
	}

	field := gjson.GetBytes(data, "bytecode")
	if field.IsObject() {
		field = field.Get("object")
	}
	code := field.String()
	if code == "" || code == "0x" {
		return "", bserr.Newf(bserr.KindConstructorRejected, "artifact", "%s has no creation bytecode (abstract contract?)", path)
	}
	if !strings.HasPrefix(code, "0x") {
		code = "0x" + code
	}
	if strings.Contains(code, "__") {
		return "", bserr.Newf(bserr.KindConstructorRejected, "artifact", "%s: unlinked library placeholders in bytecode", path)
	}

	a.cache[name] = code
	return code, nil
}
