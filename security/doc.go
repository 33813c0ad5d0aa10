// Package security holds the TLS settings of a listening service.
//
//	tlsCfg, err := cfg.Server.TLS.Build()
//	if tlsCfg != nil {
//	    ln = tls.NewListener(ln, tlsCfg)
//	}
package security
