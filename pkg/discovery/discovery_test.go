package discovery

import (
	"net"
	"testing"

	"github.com/grandcat/zeroconf"
)

func TestEntryAddr(t *testing.T) {
	for _, tc := range []struct {
		name  string
		entry *zeroconf.ServiceEntry
		want  string
	}{
		{name: "ipv4", entry: &zeroconf.ServiceEntry{AddrIPv4: []net.IP{net.ParseIP("10.0.0.2")}, Port: 3000}, want: "10.0.0.2:3000"},
		{name: "ipv6", entry: &zeroconf.ServiceEntry{AddrIPv6: []net.IP{net.ParseIP("fe80::1")}, Port: 3000}, want: "[fe80::1]:3000"},
		{name: "no address", entry: &zeroconf.ServiceEntry{Port: 3000}, want: ""},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if got := entryAddr(tc.entry); got != tc.want {
				t.Fatalf("got %q, want %q", got, tc.want)
			}
		})
	}
}
