package main

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"

	"txruntime/engine/decimalx"
	"txruntime/engine/executor"
	"txruntime/engine/ids"
	"txruntime/engine/manifest"
	"txruntime/engine/resource"
)

// jsonManifest is the human-writable, JSON-decodable mirror of
// []manifest.Instruction. manifest.Instruction itself carries a
// decimalx.Decimal (unexported fields) and raw [30]byte NodeIds, neither of
// which decode cleanly from JSON, so the CLI works against this shape and
// translates it on the way in.
type jsonManifest struct {
	TransactionHash string             `json:"transaction_hash"`
	Signers         []jsonSignerKey    `json:"signers"`
	CurrentEpoch    uint64             `json:"current_epoch"`
	EpochValidation *jsonEpochRange    `json:"epoch_validation,omitempty"`
	Blobs           map[string]string  `json:"blobs,omitempty"`
	Instructions    []jsonInstruction  `json:"instructions"`
}

type jsonSignerKey struct {
	Curve     string `json:"curve"` // "secp256k1" | "ed25519"
	PublicKey string `json:"public_key"`
}

type jsonEpochRange struct {
	SkipAssertion  bool   `json:"skip_assertion"`
	StartInclusive uint64 `json:"start_inclusive"`
	EndExclusive   uint64 `json:"end_exclusive"`
}

type jsonInstruction struct {
	Kind string `json:"kind"`

	ResourceAddr   string   `json:"resource_address,omitempty"`
	Amount         string   `json:"amount,omitempty"`
	NonFungibleIDs []string `json:"non_fungible_ids,omitempty"`
	Bucket         uint32   `json:"bucket,omitempty"`
	Proof          uint32   `json:"proof,omitempty"`
	NewBucket      uint32   `json:"new_bucket,omitempty"`
	NewProof       uint32   `json:"new_proof,omitempty"`

	Package   string `json:"package,omitempty"`
	Blueprint string `json:"blueprint,omitempty"`
	Address   string `json:"address,omitempty"`
	Function  string `json:"function,omitempty"`
	Method    string `json:"method,omitempty"`
	VaultID   string `json:"vault_id,omitempty"`

	Args []jsonArg `json:"args,omitempty"`
}

type jsonArg struct {
	Raw        string  `json:"raw,omitempty"`         // hex-encoded SBOR payload
	BucketRef  *uint32 `json:"bucket_ref,omitempty"`
	ProofRef   *uint32 `json:"proof_ref,omitempty"`
	Expression string  `json:"expression,omitempty"` // "entire_worktop" | "entire_auth_zone"
}

var instructionKinds = map[string]manifest.InstructionKind{
	"take_all_from_worktop":                     manifest.TakeAllFromWorktop,
	"take_from_worktop":                         manifest.TakeFromWorktop,
	"take_from_worktop_non_fungibles":           manifest.TakeFromWorktopNonFungibles,
	"return_to_worktop":                         manifest.ReturnToWorktop,
	"assert_worktop_contains":                   manifest.AssertWorktopContains,
	"assert_worktop_contains_any":               manifest.AssertWorktopContainsAny,
	"pop_from_auth_zone":                        manifest.PopFromAuthZone,
	"push_to_auth_zone":                         manifest.PushToAuthZone,
	"clear_auth_zone":                           manifest.ClearAuthZone,
	"clear_signature_proofs":                    manifest.ClearSignatureProofs,
	"create_proof_from_auth_zone":               manifest.CreateProofFromAuthZone,
	"create_proof_from_auth_zone_of_amount":     manifest.CreateProofFromAuthZoneOfAmount,
	"create_proof_from_auth_zone_of_non_fungibles": manifest.CreateProofFromAuthZoneOfNonFungibles,
	"create_proof_from_auth_zone_of_all":        manifest.CreateProofFromAuthZoneOfAll,
	"create_proof_from_bucket":                  manifest.CreateProofFromBucket,
	"create_proof_from_bucket_of_amount":        manifest.CreateProofFromBucketOfAmount,
	"create_proof_from_bucket_of_non_fungibles": manifest.CreateProofFromBucketOfNonFungibles,
	"create_proof_from_bucket_of_all":           manifest.CreateProofFromBucketOfAll,
	"clone_proof":                               manifest.CloneProof,
	"drop_proof":                                manifest.DropProof,
	"drop_all_proofs":                           manifest.DropAllProofs,
	"call_function":                             manifest.CallFunction,
	"call_method":                               manifest.CallMethod,
	"call_royalty_method":                       manifest.CallRoyaltyMethod,
	"call_metadata_method":                      manifest.CallMetadataMethod,
	"call_access_rules_method":                  manifest.CallAccessRulesMethod,
	"burn_resource":                             manifest.BurnResource,
	"recall_resource":                           manifest.RecallResource,
}

func loadManifestFile(path string) (jsonManifest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return jsonManifest{}, fmt.Errorf("reading manifest file: %w", err)
	}
	var m jsonManifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return jsonManifest{}, fmt.Errorf("decoding manifest file: %w", err)
	}
	return m, nil
}

func parseHash32(s string) ([32]byte, error) {
	var out [32]byte
	raw, err := hex.DecodeString(trimHexPrefix(s))
	if err != nil {
		return out, fmt.Errorf("invalid hash %q: %w", s, err)
	}
	if len(raw) != 32 {
		return out, fmt.Errorf("hash %q must decode to 32 bytes, got %d", s, len(raw))
	}
	copy(out[:], raw)
	return out, nil
}

func trimHexPrefix(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}

func (m jsonManifest) signerKeys() ([]executor.SignerKey, error) {
	out := make([]executor.SignerKey, 0, len(m.Signers))
	for i, s := range m.Signers {
		var curve ids.Curve
		switch s.Curve {
		case "secp256k1", "":
			curve = ids.CurveSecp256k1
		case "ed25519":
			curve = ids.CurveEd25519
		default:
			return nil, fmt.Errorf("signer %d: unknown curve %q", i, s.Curve)
		}
		raw, err := hex.DecodeString(trimHexPrefix(s.PublicKey))
		if err != nil {
			return nil, fmt.Errorf("signer %d: invalid public key: %w", i, err)
		}
		out = append(out, executor.SignerKey{Curve: curve, Raw: raw})
	}
	return out, nil
}

func (m jsonManifest) blobMap() (map[[32]byte][]byte, error) {
	if len(m.Blobs) == 0 {
		return nil, nil
	}
	out := make(map[[32]byte][]byte, len(m.Blobs))
	for k, v := range m.Blobs {
		hash, err := parseHash32(k)
		if err != nil {
			return nil, fmt.Errorf("blob key: %w", err)
		}
		raw, err := hex.DecodeString(trimHexPrefix(v))
		if err != nil {
			return nil, fmt.Errorf("blob %s: invalid hex payload: %w", k, err)
		}
		out[hash] = raw
	}
	return out, nil
}

func (m jsonManifest) epochValidations() []manifest.EpochValidation {
	if m.EpochValidation == nil {
		return nil
	}
	return []manifest.EpochValidation{{
		SkipAssertion:  m.EpochValidation.SkipAssertion,
		StartInclusive: m.EpochValidation.StartInclusive,
		EndExclusive:   m.EpochValidation.EndExclusive,
	}}
}

func (m jsonManifest) instructions() ([]manifest.Instruction, error) {
	out := make([]manifest.Instruction, 0, len(m.Instructions))
	for i, ji := range m.Instructions {
		inst, err := ji.toInstruction()
		if err != nil {
			return nil, fmt.Errorf("instruction %d (%s): %w", i, ji.Kind, err)
		}
		out = append(out, inst)
	}
	return out, nil
}

func (ji jsonInstruction) toInstruction() (manifest.Instruction, error) {
	kind, ok := instructionKinds[ji.Kind]
	if !ok {
		return manifest.Instruction{}, fmt.Errorf("unknown instruction kind %q", ji.Kind)
	}
	inst := manifest.Instruction{
		Kind:      kind,
		Bucket:    manifest.BucketName(ji.Bucket),
		Proof:     manifest.ProofName(ji.Proof),
		NewBucket: manifest.BucketName(ji.NewBucket),
		NewProof:  manifest.ProofName(ji.NewProof),
		Function:  ji.Function,
		Method:    ji.Method,
	}

	if ji.ResourceAddr != "" {
		addr, err := ids.ParseNodeId(ji.ResourceAddr)
		if err != nil {
			return manifest.Instruction{}, fmt.Errorf("resource_address: %w", err)
		}
		inst.ResourceAddr = addr
	}
	if ji.Amount != "" {
		amt, err := decimalx.Parse(ji.Amount)
		if err != nil {
			return manifest.Instruction{}, fmt.Errorf("amount: %w", err)
		}
		inst.Amount = amt
	}
	for _, nf := range ji.NonFungibleIDs {
		inst.NonFungibleIDs = append(inst.NonFungibleIDs, resource.NonFungibleLocalId(nf))
	}
	if ji.Package != "" {
		pkg, err := ids.ParseNodeId(ji.Package)
		if err != nil {
			return manifest.Instruction{}, fmt.Errorf("package: %w", err)
		}
		inst.Package = pkg
	}
	if ji.Blueprint != "" {
		bp, err := ids.ParseNodeId(ji.Blueprint)
		if err != nil {
			return manifest.Instruction{}, fmt.Errorf("blueprint: %w", err)
		}
		inst.Blueprint = bp
	}
	if ji.Address != "" {
		addr, err := ids.ParseNodeId(ji.Address)
		if err != nil {
			return manifest.Instruction{}, fmt.Errorf("address: %w", err)
		}
		inst.Address = addr
	}
	if ji.VaultID != "" {
		v, err := ids.ParseNodeId(ji.VaultID)
		if err != nil {
			return manifest.Instruction{}, fmt.Errorf("vault_id: %w", err)
		}
		inst.VaultID = v
	}

	for j, ja := range ji.Args {
		arg, err := ja.toArg()
		if err != nil {
			return manifest.Instruction{}, fmt.Errorf("arg %d: %w", j, err)
		}
		inst.Args = append(inst.Args, arg)
	}
	return inst, nil
}

func (ja jsonArg) toArg() (manifest.Arg, error) {
	switch {
	case ja.BucketRef != nil:
		b := manifest.BucketName(*ja.BucketRef)
		return manifest.Arg{BucketRef: &b}, nil
	case ja.ProofRef != nil:
		p := manifest.ProofName(*ja.ProofRef)
		return manifest.Arg{ProofRef: &p}, nil
	case ja.Expression != "":
		switch ja.Expression {
		case "entire_worktop":
			return manifest.Arg{Expression: manifest.ExprEntireWorktop}, nil
		case "entire_auth_zone":
			return manifest.Arg{Expression: manifest.ExprEntireAuthZone}, nil
		default:
			return manifest.Arg{}, fmt.Errorf("unknown expression %q", ja.Expression)
		}
	default:
		raw, err := hex.DecodeString(trimHexPrefix(ja.Raw))
		if err != nil {
			return manifest.Arg{}, fmt.Errorf("invalid hex raw argument: %w", err)
		}
		return manifest.Arg{Raw: raw}, nil
	}
}
