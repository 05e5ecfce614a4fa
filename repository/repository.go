package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"commons-governance/db"
	"commons-governance/errs"
	"commons-governance/models"
)

// NodeRepositoryInterface abstracts node storage from the registry logic
type NodeRepositoryInterface interface {
	CreateNode(ctx context.Context, node *models.Node) error
	UpdateNode(ctx context.Context, id string, fn func(node *models.Node) error) (*models.Node, error)
	GetNode(ctx context.Context, id string) (*models.Node, error)
	GetAllNodes(ctx context.Context) ([]*models.Node, error)
}

// SignalRepositoryInterface stores veto signals. InsertSignal must reject a
// second signal for the same (proposal, node) atomically.
type SignalRepositoryInterface interface {
	InsertSignal(ctx context.Context, signal *models.VetoSignal) error
	GetSignals(ctx context.Context, proposalID int64) ([]*models.VetoSignal, error)
}

// VetoStateRepositoryInterface stores per-proposal veto state
type VetoStateRepositoryInterface interface {
	GetVetoState(ctx context.Context, proposalID int64) (*models.VetoState, error)
	// CreateVetoStateIfAbsent stores state unless one exists; it returns the
	// stored state and whether this call created it.
	CreateVetoStateIfAbsent(ctx context.Context, state *models.VetoState) (*models.VetoState, bool, error)
	UpdateVetoState(ctx context.Context, proposalID int64, fn func(state *models.VetoState) error) (*models.VetoState, error)
	ListVetoStates(ctx context.Context) ([]*models.VetoState, error)
}

// VoteRepositoryInterface stores the weighted (payment-backed) vote channel
type VoteRepositoryInterface interface {
	PutVote(ctx context.Context, vote *models.WeightedVote) error
	GetVotes(ctx context.Context, proposalID int64) ([]*models.WeightedVote, error)
}

// Store is the full persistent store used by the governance engine
type Store interface {
	NodeRepositoryInterface
	SignalRepositoryInterface
	VetoStateRepositoryInterface
	VoteRepositoryInterface
}

const (
	nodePrefix      = "node:"
	nodeKeyPrefix   = "nodepk:"
	signalPrefix    = "signal:"
	vetoStatePrefix = "veto:"
	votePrefix      = "vote:"
	votingKeyPrefix = "votingkey:"
)

func nodeKey(id string) []byte         { return []byte(nodePrefix + id) }
func publicKeyIndex(pub string) []byte { return []byte(nodeKeyPrefix + pub) }
func proposalPart(id int64) string     { return fmt.Sprintf("%020d", id) }
func vetoStateKey(id int64) []byte     { return []byte(vetoStatePrefix + proposalPart(id)) }

func signalProposalPrefix(id int64) []byte {
	return []byte(signalPrefix + proposalPart(id) + ":")
}

func signalKey(proposalID int64, nodeID string) []byte {
	return append(signalProposalPrefix(proposalID), nodeID...)
}

func voteProposalPrefix(id int64) []byte { return []byte(votePrefix + proposalPart(id) + ":") }

func votingKeyIndex(proposalID int64, pub string) []byte {
	return []byte(votingKeyPrefix + proposalPart(proposalID) + ":" + pub)
}

// LevelDBRepository implements Store using LevelDB as the storage backend
type LevelDBRepository struct {
	db *db.LevelDB
}

// NewLevelDBRepository creates and returns a new LevelDBRepository instance
func NewLevelDBRepository(ldb *db.LevelDB) *LevelDBRepository {
	return &LevelDBRepository{db: ldb}
}

var _ Store = (*LevelDBRepository)(nil)

func checkContext(ctx context.Context, op string) error {
	if err := ctx.Err(); err != nil {
		return errs.Wrap(errs.Storage, op, err, "context done")
	}
	return nil
}

// CreateNode stores a new node and claims its public key in the same transaction
func (r *LevelDBRepository) CreateNode(ctx context.Context, node *models.Node) error {
	const op = "repository.CreateNode"
	if err := checkContext(ctx, op); err != nil {
		return err
	}
	data, err := json.Marshal(node)
	if err != nil {
		return errs.Wrap(errs.Validation, op, err, "encode node")
	}
	err = r.db.Update(func(tx *db.Txn) error {
		if err := tx.PutIfAbsent(publicKeyIndex(node.PublicKey), []byte(node.ID)); err != nil {
			return err
		}
		return tx.PutIfAbsent(nodeKey(node.ID), data)
	})
	if err == db.ErrKeyExists {
		return errs.New(errs.Duplicate, op, "public key %s already registered", node.PublicKey)
	}
	if err != nil {
		return errs.Wrap(errs.Storage, op, err, "insert node %s", node.ID)
	}
	return nil
}

// UpdateNode applies fn to the stored node atomically. The public key is immutable.
func (r *LevelDBRepository) UpdateNode(ctx context.Context, id string, fn func(node *models.Node) error) (*models.Node, error) {
	const op = "repository.UpdateNode"
	if err := checkContext(ctx, op); err != nil {
		return nil, err
	}
	var updated models.Node
	err := r.db.Update(func(tx *db.Txn) error {
		data, err := tx.Get(nodeKey(id))
		if err == db.ErrNotFound {
			return errs.New(errs.NotFound, op, "node %s", id)
		}
		if err != nil {
			return err
		}
		if err := json.Unmarshal(data, &updated); err != nil {
			return err
		}
		pub := updated.PublicKey
		if err := fn(&updated); err != nil {
			return err
		}
		updated.PublicKey = pub
		out, err := json.Marshal(&updated)
		if err != nil {
			return err
		}
		return tx.Put(nodeKey(id), out)
	})
	if err != nil {
		return nil, errs.Wrap(errs.Storage, op, err, "update node %s", id)
	}
	return &updated, nil
}

// GetNode retrieves a node by its ID
func (r *LevelDBRepository) GetNode(ctx context.Context, id string) (*models.Node, error) {
	const op = "repository.GetNode"
	if err := checkContext(ctx, op); err != nil {
		return nil, err
	}
	data, err := r.db.Get(nodeKey(id))
	if err == db.ErrNotFound {
		return nil, errs.New(errs.NotFound, op, "node %s", id)
	}
	if err != nil {
		return nil, errs.Wrap(errs.Storage, op, err, "read node %s", id)
	}
	var node models.Node
	if err := json.Unmarshal(data, &node); err != nil {
		return nil, errs.Wrap(errs.Storage, op, err, "decode node %s", id)
	}
	return &node, nil
}

// GetAllNodes retrieves every node regardless of status
func (r *LevelDBRepository) GetAllNodes(ctx context.Context) ([]*models.Node, error) {
	const op = "repository.GetAllNodes"
	if err := checkContext(ctx, op); err != nil {
		return nil, err
	}
	iter := r.db.NewPrefixIterator([]byte(nodePrefix))
	defer iter.Release()

	var nodes []*models.Node
	for iter.Next() {
		var node models.Node
		if err := json.Unmarshal(iter.Value(), &node); err != nil {
			return nil, errs.Wrap(errs.Storage, op, err, "decode node %s", iter.Key())
		}
		nodes = append(nodes, &node)
	}
	if err := iter.Error(); err != nil {
		return nil, errs.Wrap(errs.Storage, op, err, "iterate nodes")
	}
	return nodes, nil
}

// InsertSignal stores a signal unless the node already signalled on the
// proposal or its voting key is already claimed by another signal there.
func (r *LevelDBRepository) InsertSignal(ctx context.Context, signal *models.VetoSignal) error {
	const op = "repository.InsertSignal"
	if err := checkContext(ctx, op); err != nil {
		return err
	}
	data, err := json.Marshal(signal)
	if err != nil {
		return errs.Wrap(errs.Validation, op, err, "encode signal")
	}
	err = r.db.Update(func(tx *db.Txn) error {
		err := tx.PutIfAbsent(signalKey(signal.ProposalID, signal.NodeID), data)
		if err == db.ErrKeyExists {
			return errs.New(errs.Duplicate, op, "node %s already signalled on proposal #%d", signal.NodeID, signal.ProposalID)
		}
		if err != nil || signal.VotingPublicKey == "" {
			return err
		}
		err = tx.PutIfAbsent(votingKeyIndex(signal.ProposalID, signal.VotingPublicKey), []byte(signal.NodeID))
		if err == db.ErrKeyExists {
			return errs.New(errs.Duplicate, op, "voting key %s already used on proposal #%d", signal.VotingPublicKey, signal.ProposalID)
		}
		return err
	})
	if err != nil {
		return errs.Wrap(errs.Storage, op, err, "insert signal")
	}
	return nil
}

// GetSignals returns every signal for a proposal in key order
func (r *LevelDBRepository) GetSignals(ctx context.Context, proposalID int64) ([]*models.VetoSignal, error) {
	const op = "repository.GetSignals"
	if err := checkContext(ctx, op); err != nil {
		return nil, err
	}
	iter := r.db.NewPrefixIterator(signalProposalPrefix(proposalID))
	defer iter.Release()

	var signals []*models.VetoSignal
	for iter.Next() {
		var s models.VetoSignal
		if err := json.Unmarshal(iter.Value(), &s); err != nil {
			return nil, errs.Wrap(errs.Storage, op, err, "decode signal %s", iter.Key())
		}
		signals = append(signals, &s)
	}
	if err := iter.Error(); err != nil {
		return nil, errs.Wrap(errs.Storage, op, err, "iterate signals")
	}
	return signals, nil
}

// GetVetoState returns the stored veto state or a NotFound error
func (r *LevelDBRepository) GetVetoState(ctx context.Context, proposalID int64) (*models.VetoState, error) {
	const op = "repository.GetVetoState"
	if err := checkContext(ctx, op); err != nil {
		return nil, err
	}
	data, err := r.db.Get(vetoStateKey(proposalID))
	if err == db.ErrNotFound {
		return nil, errs.New(errs.NotFound, op, "no veto state for proposal #%d", proposalID)
	}
	if err != nil {
		return nil, errs.Wrap(errs.Storage, op, err, "read veto state")
	}
	var state models.VetoState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, errs.Wrap(errs.Storage, op, err, "decode veto state")
	}
	return &state, nil
}

// CreateVetoStateIfAbsent stores the first veto state of a proposal
func (r *LevelDBRepository) CreateVetoStateIfAbsent(ctx context.Context, state *models.VetoState) (*models.VetoState, bool, error) {
	const op = "repository.CreateVetoStateIfAbsent"
	if err := checkContext(ctx, op); err != nil {
		return nil, false, err
	}
	data, err := json.Marshal(state)
	if err != nil {
		return nil, false, errs.Wrap(errs.Validation, op, err, "encode veto state")
	}
	var stored models.VetoState
	created := false
	err = r.db.Update(func(tx *db.Txn) error {
		existing, err := tx.Get(vetoStateKey(state.ProposalID))
		if err == nil {
			return json.Unmarshal(existing, &stored)
		}
		if err != db.ErrNotFound {
			return err
		}
		created = true
		stored = *state
		return tx.Put(vetoStateKey(state.ProposalID), data)
	})
	if err != nil {
		return nil, false, errs.Wrap(errs.Storage, op, err, "insert veto state")
	}
	return &stored, created, nil
}

// UpdateVetoState applies fn to the stored state atomically
func (r *LevelDBRepository) UpdateVetoState(ctx context.Context, proposalID int64, fn func(state *models.VetoState) error) (*models.VetoState, error) {
	const op = "repository.UpdateVetoState"
	if err := checkContext(ctx, op); err != nil {
		return nil, err
	}
	var state models.VetoState
	err := r.db.Update(func(tx *db.Txn) error {
		data, err := tx.Get(vetoStateKey(proposalID))
		if err == db.ErrNotFound {
			return errs.New(errs.NotFound, op, "no veto state for proposal #%d", proposalID)
		}
		if err != nil {
			return err
		}
		if err := json.Unmarshal(data, &state); err != nil {
			return err
		}
		if err := fn(&state); err != nil {
			return err
		}
		out, err := json.Marshal(&state)
		if err != nil {
			return err
		}
		return tx.Put(vetoStateKey(proposalID), out)
	})
	if err != nil {
		return nil, errs.Wrap(errs.Storage, op, err, "update veto state")
	}
	return &state, nil
}

// ListVetoStates returns every stored veto state
func (r *LevelDBRepository) ListVetoStates(ctx context.Context) ([]*models.VetoState, error) {
	const op = "repository.ListVetoStates"
	if err := checkContext(ctx, op); err != nil {
		return nil, err
	}
	iter := r.db.NewPrefixIterator([]byte(vetoStatePrefix))
	defer iter.Release()

	var states []*models.VetoState
	for iter.Next() {
		var s models.VetoState
		if err := json.Unmarshal(iter.Value(), &s); err != nil {
			return nil, errs.Wrap(errs.Storage, op, err, "decode veto state %s", iter.Key())
		}
		states = append(states, &s)
	}
	if err := iter.Error(); err != nil {
		return nil, errs.Wrap(errs.Storage, op, err, "iterate veto states")
	}
	return states, nil
}

// PutVote stores a weighted vote under its own ID
func (r *LevelDBRepository) PutVote(ctx context.Context, vote *models.WeightedVote) error {
	const op = "repository.PutVote"
	if err := checkContext(ctx, op); err != nil {
		return err
	}
	data, err := json.Marshal(vote)
	if err != nil {
		return errs.Wrap(errs.Validation, op, err, "encode vote")
	}
	key := append(voteProposalPrefix(vote.ProposalID), vote.ID...)
	err = r.db.Update(func(tx *db.Txn) error {
		return tx.PutIfAbsent(key, data)
	})
	if err == db.ErrKeyExists {
		return errs.New(errs.Duplicate, op, "vote %s already recorded", vote.ID)
	}
	if err != nil {
		return errs.Wrap(errs.Storage, op, err, "insert vote")
	}
	return nil
}

// GetVotes returns every weighted vote cast on a proposal
func (r *LevelDBRepository) GetVotes(ctx context.Context, proposalID int64) ([]*models.WeightedVote, error) {
	const op = "repository.GetVotes"
	if err := checkContext(ctx, op); err != nil {
		return nil, err
	}
	iter := r.db.NewPrefixIterator(voteProposalPrefix(proposalID))
	defer iter.Release()

	var votes []*models.WeightedVote
	for iter.Next() {
		var v models.WeightedVote
		if err := json.Unmarshal(iter.Value(), &v); err != nil {
			return nil, errs.Wrap(errs.Storage, op, err, "decode vote %s", iter.Key())
		}
		votes = append(votes, &v)
	}
	if err := iter.Error(); err != nil {
		return nil, errs.Wrap(errs.Storage, op, err, "iterate votes")
	}
	return votes, nil
}
