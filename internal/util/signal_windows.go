//go:build windows

package util

import "os"

// ShutdownSignals returns the signals to listen for graceful shutdown.
func ShutdownSignals() []os.Signal {
	return []os.Signal{os.Interrupt}
}

// GracefulSignal terminates the process. Windows has no SIGINT for child
// processes; raw PCM captures have no trailer to flush, so a kill is safe.
func GracefulSignal(p *os.Process) error {
	return p.Kill()
}
