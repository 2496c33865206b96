// Package events defines what an installation reports to its observers and
// the bus that delivers it. Delivery is synchronous and in emission order;
// observers receive copies and cannot affect the pipeline.
package events
