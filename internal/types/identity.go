// Package types holds the record shapes shared by every monitoring
// subsystem: validator and finality-provider identity, the block and
// checkpoint observations the pipelines produce, and the participation
// statistics the aggregators maintain.
package types

import "time"

// ValidatorRecord is the directory's canonical view of a consensus
// participant. Any of OperatorAddress, ConsensusAddress or ConsensusHex
// resolves to the same record.
type ValidatorRecord struct {
	OperatorAddress string `json:"operatorAddress"`
	ConsensusAddress string `json:"consensusAddress"`
	ConsensusHex    string `json:"consensusHex"`
	Moniker         string `json:"moniker"`
	Jailed          bool   `json:"jailed"`
}

// Keys returns every alias this record is reachable by.
func (v ValidatorRecord) Keys() []string {
	keys := make([]string, 0, 3)
	if v.OperatorAddress != "" {
		keys = append(keys, v.OperatorAddress)
	}
	if v.ConsensusAddress != "" {
		keys = append(keys, v.ConsensusAddress)
	}
	if v.ConsensusHex != "" {
		keys = append(keys, v.ConsensusHex)
	}
	return keys
}

// FinalityProviderRecord is the directory's canonical view of a BTC
// staking finality provider, keyed by BTC public key hex.
type FinalityProviderRecord struct {
	BTCPublicKeyHex string `json:"btcPublicKeyHex"`
	OwnerAddress    string `json:"ownerAddress"`
	Jailed          bool   `json:"jailed"`
	Active          bool   `json:"active"`
}

// JailedTransition is emitted by the directory whenever a refresh
// observes a validator or finality provider's jailed flag flip.
type JailedTransition struct {
	SubjectKey  string
	SubjectType SubjectType
	WasJailed   bool
	IsJailed    bool
	ObservedAt  time.Time
}

// SubjectType distinguishes which aggregator family a subject belongs to.
type SubjectType string

const (
	SubjectValidator        SubjectType = "validator"
	SubjectFinalityProvider SubjectType = "finality_provider"
)
