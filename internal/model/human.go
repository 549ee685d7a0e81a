// human readable and writable stdlib types
// which can be used inside config file
package model

import (
	"errors"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
)

// URL is a config friendly url.URL, environment variables in the text
// form are expanded.
type URL struct {
	*url.URL
}

func (u URL) IsZero() bool {
	return u.URL == nil || u.Host == ""
}

// JoinPath returns a copy of the URL with p appended to its path. Query and
// fragment are dropped.
func (u URL) JoinPath(p string) *url.URL {
	if u.URL == nil {
		return &url.URL{Path: p}
	}
	clone := *u.URL
	if u.User != nil {
		user := *u.User
		clone.User = &user
	}
	clone.Path = strings.TrimRight(clone.Path, "/") + "/" + strings.TrimLeft(p, "/")
	clone.RawPath = ""
	clone.RawQuery = ""
	clone.Fragment = ""
	clone.RawFragment = ""
	return &clone
}

func (u *URL) UnmarshalText(text []byte) error {
	if u == nil {
		return errors.New("can't unmarshal to nil")
	}
	parsed, err := url.Parse(os.ExpandEnv(string(text)))
	if err != nil {
		return err
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return errors.New("url must have a scheme and a host, e.g. `http://some-url.com`")
	}
	u.URL = parsed
	return nil
}

func (u URL) MarshalText() ([]byte, error) {
	if u.URL == nil {
		return []byte{}, nil
	}
	return []byte(u.String()), nil
}

// TCPAddr is a listen address like ":8080" or "127.0.0.1:8080".
type TCPAddr struct {
	*net.TCPAddr
}

// ListenAddr returns the address in a form accepted by net.Listen.
func (addr TCPAddr) ListenAddr() string {
	if addr.TCPAddr == nil {
		return DefaultServerAddr
	}
	if addr.IP == nil || addr.IP.IsUnspecified() {
		return ":" + strconv.Itoa(addr.Port)
	}
	return addr.String()
}

func (addr *TCPAddr) UnmarshalText(text []byte) error {
	if addr == nil {
		return errors.New("can't unmarshal to nil")
	}
	if len(text) == 0 {
		return errors.New("can't be empty")
	}
	parsed, err := net.ResolveTCPAddr("tcp", os.ExpandEnv(string(text)))
	if err != nil {
		return err
	}
	addr.TCPAddr = parsed
	return nil
}

func (addr TCPAddr) MarshalText() ([]byte, error) {
	if addr.TCPAddr == nil {
		return []byte{}, nil
	}
	return []byte(addr.ListenAddr()), nil
}
