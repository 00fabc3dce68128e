package ssdp

import "errors"

var (
	// ErrNotSearch is returned by ParseSearch for datagrams that are not M-SEARCH requests.
	ErrNotSearch = errors.New("ssdp: not an M-SEARCH request")

	// ErrUnsupportedTarget is returned by ParseSearch when the search target
	// is not one this responder answers.
	ErrUnsupportedTarget = errors.New("ssdp: unsupported search target")
)
