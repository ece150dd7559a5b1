// Package walletsim is an in-memory simulator of the payments service. It
// serves the endpoints remote.Client consumes, issues HS256 JWTs on login
// and can inject latency and failures.
//
//	sim, err := walletsim.New(walletsim.Config{
//		Secret: []byte("dev-secret"),
//		Users:  []walletsim.User{{Email: "ana@example.com", Password: "pw", AccountID: "acc-1"}},
//	})
//	app := sim.App()
//	_ = app.Listen(":8080")
package walletsim
