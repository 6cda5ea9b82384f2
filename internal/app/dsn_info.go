package app

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// databaseInfo describes the configured store without exposing credentials.
type databaseInfo struct {
	Type        string `json:"type"`
	Host        string `json:"host,omitempty"`
	Port        int    `json:"port,omitempty"`
	User        string `json:"user,omitempty"`
	Name        string `json:"name,omitempty"`
	SSLMode     string `json:"ssl_mode,omitempty"`
	Path        string `json:"path,omitempty"`
	PasswordSet bool   `json:"password_set"`
}

func databaseInfoFromDSN(dsn string) (databaseInfo, error) {
	trimmed := strings.TrimSpace(dsn)
	if trimmed == "" {
		return databaseInfo{}, fmt.Errorf("empty dsn")
	}

	if strings.HasPrefix(strings.ToLower(trimmed), "file:") {
		pathPart, _, _ := strings.Cut(trimmed[len("file:"):], "?")
		return databaseInfo{Type: "sqlite", Path: strings.TrimSpace(pathPart)}, nil
	}

	u, errParse := url.Parse(trimmed)
	if errParse != nil {
		return databaseInfo{}, fmt.Errorf("parse dsn: %w", errParse)
	}
	switch strings.ToLower(strings.TrimSpace(u.Scheme)) {
	case "postgres", "postgresql":
	default:
		return databaseInfo{}, fmt.Errorf("unsupported dsn scheme")
	}

	info := databaseInfo{
		Type:    "postgres",
		Host:    strings.TrimSpace(u.Hostname()),
		Port:    5432,
		Name:    strings.TrimSpace(strings.TrimPrefix(u.Path, "/")),
		SSLMode: strings.TrimSpace(u.Query().Get("sslmode")),
	}
	if rawPort := strings.TrimSpace(u.Port()); rawPort != "" {
		port, errPort := strconv.Atoi(rawPort)
		if errPort != nil {
			return databaseInfo{}, fmt.Errorf("parse port: %w", errPort)
		}
		info.Port = port
	}
	if info.SSLMode == "" {
		info.SSLMode = "disable"
	}
	if u.User != nil {
		info.User = strings.TrimSpace(u.User.Username())
		_, info.PasswordSet = u.User.Password()
	}
	return info, nil
}
