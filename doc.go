// Package starpay is a payment reconciliation engine for subscriptions sold
// in Telegram Stars (currency XTR).
//
// The platform drives a purchase in three asynchronous steps, and the Engine
// has one entry point for each:
//
//   - IssueInvoice builds a correctly priced invoice for a catalog plan and
//     submits it through an invoice.Channel.
//   - PreCheckout (or the narrower Validate) approves or rejects the charge
//     before money moves. It answers within a short deadline and never
//     touches the ledger.
//   - Settle processes the successful payment notice exactly once per
//     charge id, records it in a durable ledger and calls the
//     entitlement.Activator.
//
// # Quick Start
//
//	import (
//	    "github.com/xraph/starpay"
//	    "github.com/xraph/starpay/plan"
//	    "github.com/xraph/starpay/store/sqlite"
//	    "github.com/xraph/starpay/subscription"
//	)
//
//	st, err := sqlite.Open(ctx, "file:starpay.db?_pragma=busy_timeout(5000)")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	engine, err := starpay.New(plan.DefaultCatalog(), st, channel,
//	    subscription.NewService(st),
//	    starpay.WithLogger(logger),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := engine.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer engine.Stop(ctx)
//
// # Payment references
//
// The invoice payload is the only thing that travels from issuance to
// settlement. It is produced by reference.Codec in the versioned form
//
//	sp1:<plan_id>:<requester_id>:<nonce>[:<mac>]
//
// and never carries a price. Prices are always re-read from the catalog.
//
// # Failure handling
//
// Validation failures become verdicts or settlement statuses, not errors.
// Errors returned by the engine fall into three classes, tested with
// IsNotFound, IsRetryable and IsOperatorAction. The last covers charges
// whose money moved but whose entitlement was not granted; Reconcile
// retries them once the activator is healthy.
package starpay
