// Daemon credentials.
//
// A password file has a sequence of lines, each with a username:password syntax.  Blanks are
// significant within a line; empty lines and lines starting with `#` are ignored.  ReadPasswords
// produces an Authenticator that checks credentials against the file.
//
// The authenticator can be reread from the same file after creation (on SIGHUP).  Rereading is
// thread-safe, and if it fails to read the file the authenticator is unchanged.

package auth

import (
	"fmt"
	"os"
	"strings"
	"sync"
)

// MT: Locked
type Authenticator struct {
	lock       sync.RWMutex
	filepath   string
	identities map[string]string
}

func ReadPasswords(filename string) (*Authenticator, error) {
	mapping, err := readPasswords(filename)
	if err != nil {
		return nil, err
	}
	return &Authenticator{
		filepath:   filename,
		identities: mapping,
	}, nil
}

func readPasswords(filename string) (map[string]string, error) {
	bs, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	m := make(map[string]string)
	for i, l := range strings.Split(string(bs), "\n") {
		s := strings.TrimSpace(l)
		if s == "" || strings.HasPrefix(s, "#") {
			continue
		}
		user, pass, found := strings.Cut(s, ":")
		if !found || user == "" || strings.Contains(pass, ":") {
			return nil, fmt.Errorf("Password file has the wrong format (line %d)", i+1)
		}
		if _, found := m[user]; found {
			return nil, fmt.Errorf("Password file has duplicated user name (line %d)", i+1)
		}
		m[user] = pass
	}
	return m, nil
}

func (a *Authenticator) Authenticate(user, pass string) bool {
	a.lock.RLock()
	defer a.lock.RUnlock()
	probe, found := a.identities[user]
	return found && probe == pass
}

func (a *Authenticator) Reread() error {
	m, err := readPasswords(a.filepath)
	if err != nil {
		return err
	}
	a.lock.Lock()
	defer a.lock.Unlock()
	a.identities = m
	return nil
}
