// Package commitrevealvoting implements two-choice commit-reveal voting inside
// the governance context.
//
// Voters first submit keccak256(choice digit || secret) while the commit
// window is open and disclose the plaintext once it closes. The module owns
// session lifecycle, commitment verification, tallying and result
// announcement. Business rules live in the domain and application layers;
// storage, transport and messaging sit behind ports and adapters.
package commitrevealvoting
