package main

import "time"

// GlobalFlags holds the persistent flags shared by every command.
// Values reach the configuration through config.Load, which only applies
// flags the user actually set.
type GlobalFlags struct {
	ConfigPath string
	LockDir    string
	LogFile    string
	LogLevel   string
	Console    bool
	Exclusive  bool
	ReuseCheck bool
	HistoryDSN string
	Textfile   string
	Env        []string
}

// APIFlags select a remote status server instead of the local lock dir.
type APIFlags struct {
	APIUrl     string
	APIToken   string
	APITimeout time.Duration
}

// ListFlags holds flags for the list command.
type ListFlags struct {
	JSON      bool
	AliveOnly bool
	APIFlags
}

// CleanFlags holds flags for the clean command.
type CleanFlags struct {
	DryRun bool
	APIFlags
}

// ServeFlags holds flags for the serve command.
type ServeFlags struct {
	Listen   string
	BasePath string
	TLSCert  string
	TLSKey   string
}
