// Command dnsq sends a single query to a DNS server and prints the reply.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/miekg/dns"
)

var (
	server  string
	qtype   string
	timeout time.Duration
	noRD    bool
)

func init() {
	flag.StringVar(&server, "server", "127.0.0.1:53", "Address of the DNS server to query")
	flag.StringVar(&qtype, "type", "A", "Query type")
	flag.DurationVar(&timeout, "timeout", 5*time.Second, "Time to wait for a reply")
	flag.BoolVar(&noRD, "nord", false, "Clear the recursion desired bit")
}

func main() {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] name\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	rtype, ok := dns.StringToType[strings.ToUpper(qtype)]
	if !ok {
		fmt.Fprintln(os.Stderr, "Unknown query type:", qtype)
		os.Exit(2)
	}

	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(flag.Arg(0)), rtype)
	m.RecursionDesired = !noRD

	c := &dns.Client{Net: "udp", Timeout: timeout}
	r, rtt, err := c.Exchange(m, server)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Query failed:", err)
		os.Exit(1)
	}

	fmt.Println(r)
	fmt.Printf(";; Query time: %v\n;; SERVER: %s\n", rtt.Round(time.Microsecond), server)

	if r.Rcode != dns.RcodeSuccess {
		os.Exit(1)
	}
}
