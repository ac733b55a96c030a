package shader

// GLSL built-ins, valid as both 410 core and 300 es bodies.

const fullscreenVertexGLSL = `const vec2 quad[6] = vec2[6](
    vec2(-1.0, -1.0), vec2( 1.0, -1.0), vec2(-1.0,  1.0),
    vec2(-1.0,  1.0), vec2( 1.0, -1.0), vec2( 1.0,  1.0)
);

void main() {
    gl_Position = vec4(quad[gl_VertexID], 0.0, 1.0);
}
`

const defaultFragmentGLSL = `void main() {
    vec2 uv    = gl_FragCoord.xy / uniforms.resolution;
    float pulse = 1.0 - uniforms.quarterPhase * 0.3;
    vec3 col   = 0.5 + 0.5 * cos(uniforms.time + uv.xyx + vec3(0.0, 2.0, 4.0));
    fragColor  = vec4(col * pulse, 1.0);
}
`

// Targets and the default framebuffer share GL's bottom-left origin, so
// the GL blit samples without a flip.
const blitFragmentGLSL = `void main() {
    vec2 uv = gl_FragCoord.xy / uniforms.resolution;
    fragColor = texture(iChannel0, uv);
}
`

const cubeVertexGLSL = `const vec3 cube[36] = vec3[36](
    vec3(-1.0,-1.0,-1.0), vec3( 1.0,-1.0,-1.0), vec3(-1.0, 1.0,-1.0),
    vec3(-1.0, 1.0,-1.0), vec3( 1.0,-1.0,-1.0), vec3( 1.0, 1.0,-1.0),
    vec3( 1.0,-1.0, 1.0), vec3(-1.0,-1.0, 1.0), vec3( 1.0, 1.0, 1.0),
    vec3( 1.0, 1.0, 1.0), vec3(-1.0,-1.0, 1.0), vec3(-1.0, 1.0, 1.0),
    vec3(-1.0,-1.0, 1.0), vec3(-1.0,-1.0,-1.0), vec3(-1.0, 1.0, 1.0),
    vec3(-1.0, 1.0, 1.0), vec3(-1.0,-1.0,-1.0), vec3(-1.0, 1.0,-1.0),
    vec3( 1.0,-1.0,-1.0), vec3( 1.0,-1.0, 1.0), vec3( 1.0, 1.0,-1.0),
    vec3( 1.0, 1.0,-1.0), vec3( 1.0,-1.0, 1.0), vec3( 1.0, 1.0, 1.0),
    vec3(-1.0,-1.0, 1.0), vec3( 1.0,-1.0, 1.0), vec3(-1.0,-1.0,-1.0),
    vec3(-1.0,-1.0,-1.0), vec3( 1.0,-1.0, 1.0), vec3( 1.0,-1.0,-1.0),
    vec3(-1.0, 1.0,-1.0), vec3( 1.0, 1.0,-1.0), vec3(-1.0, 1.0, 1.0),
    vec3(-1.0, 1.0, 1.0), vec3( 1.0, 1.0,-1.0), vec3( 1.0, 1.0, 1.0)
);

void main() {
    float angle = uniforms.time * 0.5;
    float c = cos(angle);
    float s = sin(angle);
    mat3 rotY = mat3(
        vec3( c,   0.0, s  ),
        vec3( 0.0, 1.0, 0.0),
        vec3(-s,   0.0, c  )
    );
    vec3 worldPos = rotY * cube[gl_VertexID];

    float aspect = uniforms.resolution.x / uniforms.resolution.y;
    float viewZ  = worldPos.z + 4.0;
    float fov    = 1.732;
    gl_Position = vec4(
        worldPos.x * fov / (viewZ * aspect),
        worldPos.y * fov / viewZ,
        (viewZ - 0.1) / (100.0 - 0.1),
        1.0);
}
`

const sphereVertexGLSL = `const float PI = 3.14159265358979;
const int SLICES = 32;
const int STACKS = 16;

void main() {
    int quadIdx = gl_VertexID / 6;
    int vertInQ = gl_VertexID % 6;
    int stack   = quadIdx / SLICES;
    int slice   = quadIdx % SLICES;

    float phi0   = float(stack)     / float(STACKS) * PI;
    float phi1   = float(stack + 1) / float(STACKS) * PI;
    float theta0 = float(slice)     / float(SLICES) * 2.0 * PI;
    float theta1 = float(slice + 1) / float(SLICES) * 2.0 * PI;

    vec3 c0 = vec3(sin(phi0)*cos(theta0), cos(phi0), sin(phi0)*sin(theta0));
    vec3 c1 = vec3(sin(phi0)*cos(theta1), cos(phi0), sin(phi0)*sin(theta1));
    vec3 c2 = vec3(sin(phi1)*cos(theta0), cos(phi1), sin(phi1)*sin(theta0));
    vec3 c3 = vec3(sin(phi1)*cos(theta1), cos(phi1), sin(phi1)*sin(theta1));

    vec3 worldPos;
    if (vertInQ == 0) worldPos = c0;
    else if (vertInQ == 1 || vertInQ == 4) worldPos = c1;
    else if (vertInQ == 2 || vertInQ == 3) worldPos = c2;
    else worldPos = c3;

    float angle = uniforms.time * 0.4;
    float c = cos(angle);
    float s = sin(angle);
    mat3 rotY = mat3(
        vec3( c,   0.0, s  ),
        vec3( 0.0, 1.0, 0.0),
        vec3(-s,   0.0, c  )
    );
    worldPos = rotY * worldPos;

    float aspect = uniforms.resolution.x / uniforms.resolution.y;
    float viewZ  = worldPos.z + 3.0;
    float fov    = 1.732;
    gl_Position = vec4(
        worldPos.x * fov / (viewZ * aspect),
        worldPos.y * fov / viewZ,
        (viewZ - 0.1) / (100.0 - 0.1),
        1.0);
}
`
