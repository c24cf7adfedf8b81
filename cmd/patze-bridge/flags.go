package main

import "time"

// Flag structs to decouple cobra from logic for testing.

type GlobalFlags struct {
	ConfigPath string
}

type ServeFlags struct {
	ConfigPath string
}

type StatusFlags struct {
	Machine    string
	APIUrl     string
	APITimeout time.Duration
}

type MachinesFlags struct {
	APIUrl     string
	APITimeout time.Duration
}

type EventsFlags struct {
	Limit      int
	APIUrl     string
	APITimeout time.Duration
}
