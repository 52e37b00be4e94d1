// Package factory provides a small generic registry used to instantiate
// pluggable modules (metrics sinks, state stores) from configuration. A
// module is a type string plus a map of raw settings that the factory decodes
// with Decode.
//
//	reg := factory.NewRegistry[plan.StateStore]()
//	reg.Register("sqlite", func(conf map[string]any) (plan.StateStore, error) {
//	    var c struct{ Path string `json:"path"` }
//	    if err := factory.Decode(conf, &c); err != nil {
//	        return nil, err
//	    }
//	    return store.OpenSQLite(c.Path)
//	})
package factory
