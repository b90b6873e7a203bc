//go:build libopus

package main

import _ "github.com/glizzus/soundcodec/internal/codec/libopus"
