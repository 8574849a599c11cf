package config

import (
	"log"
	"strconv"
	"strings"
)

// MPDEnv holds what MPD_HOST and MPD_PORT say about reaching MPD.
type MPDEnv struct {
	Host   string
	Socket string
	Pass   string
	Port   int
}

// ParseMPDEnv reads MPD_HOST in the forms mpc understands:
//
//	host            tcp host
//	/path/sock      unix socket
//	@abstract       abstract socket
//	pass@host       password and tcp host or socket
//	pass@@abstract  password and abstract socket
//
// and MPD_PORT as a number.
func ParseMPDEnv(getenv Getenv) MPDEnv {
	var env MPDEnv

	if v := getenv("MPD_HOST"); v != "" {
		switch {
		case strings.HasPrefix(v, "@"):
			env.Socket = v
		case strings.Contains(v, "@@"):
			parts := strings.SplitN(v, "@@", 2)
			env.Pass = parts[0]
			env.Socket = "@" + parts[1]
		case strings.Contains(v, "@"):
			parts := strings.SplitN(v, "@", 2)
			env.Pass = parts[0]
			env.setAddr(parts[1])
		default:
			env.setAddr(v)
		}
	}

	if p := getenv("MPD_PORT"); p != "" {
		if n, err := strconv.Atoi(p); err == nil {
			env.Port = n
		} else {
			log.Printf("[config] ignoring MPD_PORT=%q: %v", p, err)
		}
	}
	return env
}

func (e *MPDEnv) setAddr(addr string) {
	if !strings.Contains(addr, "/") {
		e.Host = addr
		return
	}
	e.Socket = addr
	if !strings.HasPrefix(addr, "/") {
		log.Printf("[config] MPD socket assumed to be relative path: %s", addr)
	}
}
