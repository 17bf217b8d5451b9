package tui

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// ParseAddress reads "ip" or "ip:port" as typed by the user.
func ParseAddress(input string, defaultPort int) (string, int, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", 0, fmt.Errorf("IP address is required")
	}

	ip, portText := input, ""
	if h, p, err := net.SplitHostPort(input); err == nil {
		ip, portText = h, p
	}
	if net.ParseIP(ip) == nil {
		return "", 0, fmt.Errorf("invalid IP address format")
	}

	port := defaultPort
	if portText != "" {
		n, err := strconv.Atoi(portText)
		if err != nil || n <= 0 || n > 65535 {
			return "", 0, fmt.Errorf("port must be between 1 and 65535")
		}
		port = n
	}
	return ip, port, nil
}

func formatAddress(ip string, port int) string {
	return net.JoinHostPort(ip, strconv.Itoa(port))
}
