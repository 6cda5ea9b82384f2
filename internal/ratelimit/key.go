package ratelimit

import "strings"

// LoginKey builds the limiter key for login attempts from one client.
func LoginKey(clientIP string) string {
	clientIP = strings.TrimSpace(clientIP)
	if clientIP == "" {
		return ""
	}
	return "login:" + clientIP
}
