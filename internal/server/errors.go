package server

import "errors"

var ErrSetup = errors.New("server setup failed")
