package extract

const systemPrompt = `You are an AI specialized in chain-of-thought reasoning.
You extract key entities, concepts, and time references from the query.
You break down queries into smaller steps and questions covering types of reasoning (deductive, inductive, abductive, or abstract).
Be precise and concise in your extractions.`

const userPromptTemplate = `Analyze the following query: %s

Please extract the following from the query:
1. Entities (specific people, places, organizations)
2. Concepts (abstract ideas or themes), including those mentioned in the chain-of-thought reasoning questions
3. Time period or date reference (if mentioned)

Please generate a list of 3-5 chain-of-thought questions that would help respond to the query, with not more than one entity per question. For each question, specify the type(s) of reasoning best suited to answer the question (e.g. deductive, inductive, abductive, or abstract).

Optionally include an "ideal_mix" object suggesting how many events, claims and text chunks to retrieve.

Format the response as a JSON object with the following structure:
{
    "key_entities": ["entity1", "entity2", ...],
    "key_concepts": ["concept1", "concept2", ...],
    "time_reference": "string or null",
    "chain_of_thought_questions": [
        {"question": "...", "reasoning_types": ["deductive", "inductive"]},
        {"question": "...", "reasoning_types": ["abductive"]}
    ],
    "ideal_mix": {"events": 27, "claims_ideas": 27, "chunks": 3}
}

IMPORTANT: Return ONLY the complete JSON object with closing braces, without any additional text or explanation.`
