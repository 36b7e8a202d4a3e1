package domain

// SettlementResult is the committed outcome of an AcceptTender call. It
// carries everything the notification fan-out and the caller's view need:
// the winning tender, the tenders rejected in the same atomic unit, and the
// updated listing.
type SettlementResult struct {
	Accepted Tender
	Rejected []Tender
	Listing  Listing
	// AlreadySettled marks a retry against a listing that was settled by an
	// earlier call accepting the same tender. No state changed; Accepted
	// holds the previously accepted tender and Rejected is empty.
	AlreadySettled bool
}

// SettlementRecord is the archival snapshot of a settled listing: the
// listing itself plus its complete tender set at archive time. Written as
// JSONL to blob storage by the settlement archiver.
type SettlementRecord struct {
	Listing Listing  `json:"listing"`
	Tenders []Tender `json:"tenders"`
}
