package coordinator

import (
	"hemolink/internal/matching/models"
	id "hemolink/pkg/domain"
)

// event is anything a request actor can receive. Everything that changes a
// request's state arrives through its inbox, including the results of work
// the actor started itself.
type event interface {
	isEvent()
}

type searchDone struct {
	seq    int
	result *models.SearchResult
	err    error
}

type retrySearch struct {
	seq int
}

type donorResponse struct {
	attemptID id.AttemptID
	accept    bool
	reply     chan error
}

type attemptTimeout struct {
	attemptID id.AttemptID
}

type deliveryResult struct {
	attemptID id.AttemptID
	ack       models.Ack
	err       error
}

type requesterNotified struct {
	status models.RequestStatus
	err    error
}

type cancelRequest struct {
	reply chan error
}

type completeDonation struct {
	attemptID id.AttemptID
	reply     chan error
}

type requestExpired struct{}

type snapshotQuery struct {
	reply chan Snapshot
}

func (searchDone) isEvent()        {}
func (retrySearch) isEvent()       {}
func (donorResponse) isEvent()     {}
func (attemptTimeout) isEvent()    {}
func (deliveryResult) isEvent()    {}
func (requesterNotified) isEvent() {}
func (cancelRequest) isEvent()     {}
func (completeDonation) isEvent()  {}
func (requestExpired) isEvent()    {}
func (snapshotQuery) isEvent()     {}
