//
// Tencent is pleased to support the open source community by making semgraph available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// semgraph is licensed under the Apache License Version 2.0.
//
//

package prompt

// Fixed prompt text. The ontology and methodology sections are stable across
// turns so providers with prompt caching can reuse them.

const ontologyText = `# Ontology

You edit a systems engineering graph. It contains exactly these node types:

- SYS: a system or subsystem under design.
- UC: a use case describing an externally visible interaction.
- ACTOR: a human or external system interacting with a use case.
- FCHAIN: a functional chain grouping functions into an ordered flow.
- FUNC: a single function performed by the system.
- FLOW: a data or material flow exchanged between functions.
- REQ: a requirement the system must satisfy.
- TEST: a test case verifying one or more requirements.
- MOD: a module of the physical or logical architecture.
- SCHEMA: a data schema describing the structure of a flow.

And exactly these edge types:

- compose: parent decomposes into child (SYS->SYS, SYS->UC, UC->FUNC, FCHAIN->FUNC, ...).
- io: producer/consumer relation through a FLOW (FUNC->FLOW, FLOW->FUNC).
- satisfy: a design element satisfies a REQ.
- verify: a TEST verifies a REQ.
- allocate: a FUNC is allocated to a MOD.
- relation: any other typed association.

# Format E

Emit every graph change inside a single <operations> block using Format E,
one operation per line:

    + SemanticId|Description [key:value,key:value]
    ~ SemanticId|NewDescription [key:value]
    - SemanticId
    + SourceId -arrow-> TargetId

Arrows: -cp-> (compose), -io-> (io), -sat-> (satisfy), -ver-> (verify),
-alc-> (allocate), -rel-> (relation).

Semantic IDs have the shape Name.TYPE.NNN, e.g. Checkout.UC.001 or
Pay.FN.002. Never invent new node or edge types. Never reuse an existing
semantic ID for a new node. Reference only nodes that exist in the graph
state or earlier in the same block.`

const methodologyHeader = `# Methodology

Decompose top-down: system, then use cases with actors, then functional
chains and functions with their flows, then requirements, tests, modules and
allocations. Keep each change minimal and anchored to existing nodes. Prefer
updating an existing node over deleting and recreating it, so its identity
and history survive. Phase attributes mark maturity: phase 1 context, phase 2
use cases, phase 3 functions and flows, phase 4 architecture.`

const criticalErrorsText = `- Referencing a node that does not exist and is not created earlier in the block.
- Creating a node whose semantic ID already exists.
- Connecting two FUNC nodes directly with -io-> instead of through a FLOW.
- Emitting an edge whose endpoint types the ontology does not allow.
- Placing operations outside the <operations> block.`

const checklistText = `## Before submitting

1. Every referenced semantic ID exists in the graph state or earlier in the block.
2. Every new semantic ID is unique and well-formed.
3. Every io connection runs FUNC -io-> FLOW -io-> FUNC.
4. The block parses line by line as Format E.`
