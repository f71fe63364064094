// Package hubship provides an embeddable change-data-capture shipping agent.
//
// A Hubship instance tails an NDJSON change log, batches change events per
// destination partition, ships each batch to a hub ingestion service, and
// commits the source offset only after the batch was confirmed transmitted.
//
// Example usage:
//
//	cfg := hubship.Config{
//	    ChangeLog:  "/var/log/cdc/changes.ndjson",
//	    ServiceURL: "https://hub.example.com",
//	    AuthKey:    "your-api-key",
//	}
//	h, err := hubship.New(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := h.Start(context.Background()); err != nil {
//	    log.Fatal(err)
//	}
//	defer h.Stop()
package hubship
