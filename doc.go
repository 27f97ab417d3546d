/*
Package photonyx is a minimal HTTP/1.1 application server whose endpoints,
models and database connections come from plugin modules.

The server accepts each connection on a fixed worker pool, parses exactly one
request, answers it and closes the socket. WebSocket upgrades are the
exception: the socket stays with its worker and exchanges JSON events until
either side closes.

Quick Start

	package main

	import (
	    "context"
	    "log"

	    "github.com/DimaCrafter/photonyx/app"
	    "github.com/DimaCrafter/photonyx/config"
	    "github.com/DimaCrafter/photonyx/core/http"
	)

	func main() {
	    cfg, err := config.Load(config.DefaultFile)
	    if err != nil {
	        log.Fatal(err)
	    }
	    application, err := app.New(cfg)
	    if err != nil {
	        log.Fatal(err)
	    }

	    application.Router().Register("/hello/{name}", func(ctx *http.Context) http.Outcome {
	        return ctx.JSON(map[string]string{"hello": ctx.Param("name")})
	    })

	    log.Fatal(application.Run(context.Background()))
	}

Modules

A module is either linked in with modules.RegisterStatic or built as a shared
library (.so, .dylib or .dll) dropped into the modules directory. Shared
libraries export any of init_module, provide_database, provide_models,
provide_routes and on_attach; core/modules/photonyx.h describes the ABI.
Lifecycle phases run in order for all modules: load, databases, models,
routes.

Packages

  - app: wiring and process lifecycle
  - config: YAML, .env and environment configuration
  - core: acceptor and per-connection pipeline
  - core/http: HTTP/1.1 parsing, responses and the request context
  - core/router: path patterns and the route table
  - core/cors: CORS headers and upgrade detection
  - core/websocket: handshake, event endpoints and the client hub
  - core/db: database abstraction, models and the connection registry
  - core/db/pebbledb, core/db/mongodb: built-in database providers
  - core/modules: static and native module loading
  - core/pools: worker and buffer pools
  - core/validate: JSON payload validation
  - core/metrics, core/logging: Prometheus metrics and zap loggers
*/
package photonyx
