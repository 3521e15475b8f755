// Package sealer protects sensitive job fragments with public-key
// encryption.
//
// Producers only ever hold the workers' public key, which they read once
// from the well-known "Public Key" record and cache in a Gateway. Workers
// hold the matching Keypair and open the fragment right before the job is
// processed.
//
// The default Cipher is a hybrid NaCl scheme: a random secretbox key seals
// the msgpack-encoded fragment and is itself sealed to the recipient with
// box.SealAnonymous.
package sealer
