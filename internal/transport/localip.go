package transport

import (
	"log"
	"net"
	"strings"
)

// preferredIfaces are the interface name prefixes searched first for the
// host's address: wired, then wireless, in both naming schemes.
var preferredIfaces = []string{"eth", "wlan", "en", "wl"}

// LocalIP returns the host's LAN address, or Unknown if none is found.
func LocalIP() string {
	ifaces, err := net.Interfaces()
	if err != nil {
		log.Printf("[net] list interfaces: %v", err)
		return Unknown
	}

	var fallback string
	for _, prefix := range preferredIfaces {
		for _, ifc := range ifaces {
			if ifc.Flags&net.FlagUp == 0 || ifc.Flags&net.FlagLoopback != 0 {
				continue
			}
			ip := firstAddr(ifc)
			if ip == "" {
				continue
			}
			if strings.HasPrefix(ifc.Name, prefix) {
				return ip
			}
			if fallback == "" {
				fallback = ip
			}
		}
	}

	if fallback != "" {
		return fallback
	}
	return Unknown
}

// firstAddr returns the interface's first IPv4 address, else its first
// IPv6 one, else "".
func firstAddr(ifc net.Interface) string {
	addrs, err := ifc.Addrs()
	if err != nil {
		return ""
	}

	var v6 string
	for _, a := range addrs {
		ipnet, ok := a.(*net.IPNet)
		if !ok || ipnet.IP.IsLoopback() {
			continue
		}
		if v4 := ipnet.IP.To4(); v4 != nil {
			return v4.String()
		}
		if v6 == "" && !ipnet.IP.IsLinkLocalUnicast() {
			v6 = ipnet.IP.String()
		}
	}
	return v6
}
