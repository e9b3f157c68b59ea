package paymaster

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// AssessmentStatus describes the preflight outcome for a meta-transaction.
type AssessmentStatus string

const (
	AssessmentReady    AssessmentStatus = "ready"
	AssessmentRejected AssessmentStatus = "rejected"
)

// Assessment summarises the preflight checks for a meta-transaction. Relays
// surface the status and reason to clients before paying for submission.
type Assessment struct {
	Status        AssessmentStatus
	Kind          ErrorKind
	Reason        string
	Err           *Error
	Hash          common.Hash
	ExpectedNonce *uint256.Int
	Signer        common.Address
}

// Assess runs every check Execute would run, in the same order, without
// mutating state or calling the target. Errors represent unexpected state
// retrieval failures; all validation issues are reflected in the returned
// assessment instead.
func (e *Engine) Assess(req *MetaTx) (*Assessment, error) {
	if e == nil || e.state == nil {
		return nil, errStateUnavailable
	}
	if req == nil {
		return nil, errRequestRequired
	}
	tx := req.normalized()
	assessment := &Assessment{Status: AssessmentReady, Hash: tx.Hash()}

	cfg, err := e.loadConfig()
	if err != nil {
		return nil, err
	}
	if err := e.authorize(cfg, tx); err != nil {
		return assessment.reject(err), nil
	}

	expected, err := e.loadNonce(tx.From)
	if err != nil {
		return nil, err
	}
	assessment.ExpectedNonce = expected
	if !expected.Eq(tx.Nonce) {
		return assessment.reject(errInvalidNonce(expected, tx.Nonce)), nil
	}

	recovered, err := e.recoverSigner(assessment.Hash, tx.Signature)
	if err != nil {
		return assessment.reject(err), nil
	}
	assessment.Signer = recovered
	if recovered != tx.From {
		return assessment.reject(errInvalidSignature(tx.From, recovered)), nil
	}
	return assessment, nil
}

func (a *Assessment) reject(err error) *Assessment {
	a.Status = AssessmentRejected
	a.Kind = KindOf(err)
	a.Reason = err.Error()
	if pmErr, ok := err.(*Error); ok {
		a.Err = pmErr
	}
	return a
}
